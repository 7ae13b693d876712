// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import "time"

// SetClock overrides the signer's time source in tests.
func (s *TokenSigner) SetClock(now func() time.Time) { s.now = now }

// SetClock overrides the manager's time source in tests.
func (m *OTPManager) SetClock(now func() time.Time) { m.now = now }

// SetClock overrides the service's time source in tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }
