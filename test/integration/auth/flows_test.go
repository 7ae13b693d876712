// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

//go:build integration

package auth_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/eventdesk/eventdesk/internal/auth"
)

const (
	aliEmail    = "ali@x.com"
	aliPassword = "Passw0rd"
)

func signupAli() *auth.SignupResult {
	res, err := env.svc.Signup(env.ctx, auth.SignupInput{
		FullName: "Ali",
		Email:    aliEmail,
		Phone:    "03001234567",
		Password: aliPassword,
	})
	Expect(err).NotTo(HaveOccurred())
	return res
}

func loginAli() *auth.LoginResult {
	_, err := env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
	Expect(err).NotTo(HaveOccurred())
	res, err := env.svc.VerifyLoginOTP(env.ctx, aliEmail, env.outbox.lastCode())
	Expect(err).NotTo(HaveOccurred())
	return res
}

func countRows(query string, args ...any) int {
	var n int
	Expect(env.pool.QueryRow(env.ctx, query, args...).Scan(&n)).To(Succeed())
	return n
}

var _ = Describe("Signup", func() {
	It("creates exactly one participant", func() {
		res := signupAli()

		Expect(res.Success).To(BeTrue())
		Expect(res.Role).To(Equal(auth.RoleParticipant))
		Expect(countRows("SELECT count(*) FROM users WHERE email = $1", aliEmail)).To(Equal(1))
	})

	It("rejects a duplicate email and creates no row", func() {
		signupAli()

		_, err := env.svc.Signup(env.ctx, auth.SignupInput{
			FullName: "Ali Again",
			Email:    "ALI@x.com",
			Phone:    "+923001234567",
			Password: "An0therPass",
		})
		Expect(err).To(MatchError(ContainSubstring("Email already registered")))
		Expect(auth.KindOf(err)).To(Equal(auth.KindConflict))
		Expect(countRows("SELECT count(*) FROM users")).To(Equal(1))
	})

	It("never grants SUPER_ADMIN through signup", func() {
		res, err := env.svc.Signup(env.ctx, auth.SignupInput{
			FullName: "Mallory",
			Email:    "mallory@x.com",
			Phone:    "03001234567",
			Password: aliPassword,
			Role:     "SUPER_ADMIN",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Role).To(Equal(auth.RoleParticipant))
	})
})

var _ = Describe("Two-step signin", func() {
	BeforeEach(func() { signupAli() })

	It("sends a code and issues tokens only after it is verified", func() {
		res, err := env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Message).To(HavePrefix("OTP sent"))
		Expect(countRows("SELECT count(*) FROM refresh_tokens")).To(Equal(0))

		code := env.outbox.lastCode()
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		_, err = env.svc.VerifyLoginOTP(env.ctx, aliEmail, wrong)
		Expect(err).To(HaveOccurred())
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuth))

		login, err := env.svc.VerifyLoginOTP(env.ctx, aliEmail, code)
		Expect(err).NotTo(HaveOccurred())
		Expect(login.AccessToken).NotTo(BeEmpty())
		Expect(login.RefreshToken).NotTo(BeEmpty())
		Expect(login.User.Email).To(Equal(aliEmail))
		Expect(login.User.Role).To(Equal(auth.RoleParticipant))

		var expiresAt time.Time
		Expect(env.pool.QueryRow(env.ctx,
			"SELECT expires_at FROM refresh_tokens WHERE user_id = $1", login.User.ID.String()).
			Scan(&expiresAt)).To(Succeed())
		Expect(expiresAt).To(BeTemporally("~", time.Now().Add(7*24*time.Hour), time.Minute))
	})

	It("refuses to replay a consumed code", func() {
		_, err := env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
		Expect(err).NotTo(HaveOccurred())
		code := env.outbox.lastCode()

		_, err = env.svc.VerifyLoginOTP(env.ctx, aliEmail, code)
		Expect(err).NotTo(HaveOccurred())

		_, err = env.svc.VerifyLoginOTP(env.ctx, aliEmail, code)
		Expect(err).To(HaveOccurred())
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuth))
	})

	It("refuses an expired code", func() {
		_, err := env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
		Expect(err).NotTo(HaveOccurred())
		code := env.outbox.lastCode()

		_, err = env.pool.Exec(env.ctx, "UPDATE otp_codes SET expires_at = now() - interval '1 minute'")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.svc.VerifyLoginOTP(env.ctx, aliEmail, code)
		Expect(err).To(HaveOccurred())
		Expect(auth.KindOf(err)).To(Equal(auth.KindAuth))
	})

	It("keeps one live code per user when signin is repeated", func() {
		for range 3 {
			_, err := env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(countRows("SELECT count(*) FROM otp_codes WHERE consumed_at IS NULL")).To(Equal(1))

		_, err := env.svc.VerifyLoginOTP(env.ctx, aliEmail, env.outbox.lastCode())
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps one live code when signins race", func() {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for range 4 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
				mu.Lock()
				defer mu.Unlock()
				errs = append(errs, err)
			}()
		}
		wg.Wait()

		for _, err := range errs {
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(countRows("SELECT count(*) FROM otp_codes WHERE consumed_at IS NULL")).To(Equal(1))

		verified := 0
		for _, code := range env.outbox.codes() {
			if _, err := env.svc.VerifyLoginOTP(env.ctx, aliEmail, code); err == nil {
				verified++
			}
		}
		Expect(verified).To(Equal(1))
	})

	It("rejects a wrong password without sending a code", func() {
		_, err := env.svc.SigninWithPassword(env.ctx, aliEmail, "WrongPass1")
		Expect(err).To(MatchError(ContainSubstring("Invalid password")))
		Expect(env.outbox.sent).To(BeEmpty())
	})
})

var _ = Describe("Refresh token rotation", func() {
	var login *auth.LoginResult

	BeforeEach(func() {
		signupAli()
		login = loginAli()
	})

	It("rotates in place and retires the old token", func() {
		var idBefore string
		Expect(env.pool.QueryRow(env.ctx, "SELECT id FROM refresh_tokens").Scan(&idBefore)).To(Succeed())

		res, err := env.svc.RefreshAccessToken(env.ctx, login.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RefreshToken).NotTo(Equal(login.RefreshToken))

		var idAfter string
		Expect(env.pool.QueryRow(env.ctx, "SELECT id FROM refresh_tokens").Scan(&idAfter)).To(Succeed())
		Expect(idAfter).To(Equal(idBefore))

		_, err = env.svc.RefreshAccessToken(env.ctx, login.RefreshToken)
		Expect(err).To(MatchError(ContainSubstring("Invalid refresh token")))
	})

	It("lets exactly one of two concurrent rotations win", func() {
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes []string
			failures  int
		)
		for range 2 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				res, err := env.svc.RefreshAccessToken(env.ctx, login.RefreshToken)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failures++
					return
				}
				successes = append(successes, res.RefreshToken)
			}()
		}
		wg.Wait()

		Expect(successes).To(HaveLen(1))
		Expect(failures).To(Equal(1))
		Expect(countRows("SELECT count(*) FROM refresh_tokens")).To(Equal(1))
		Expect(countRows("SELECT count(*) FROM refresh_tokens WHERE token_hash = $1",
			auth.HashToken(successes[0]))).To(Equal(1))
	})

	It("rejects an expired row and leaves it untouched", func() {
		_, err := env.pool.Exec(env.ctx, "UPDATE refresh_tokens SET expires_at = now() - interval '1 second'")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.svc.RefreshAccessToken(env.ctx, login.RefreshToken)
		Expect(err).To(MatchError(ContainSubstring("Refresh token expired or revoked")))
		Expect(countRows("SELECT count(*) FROM refresh_tokens WHERE token_hash = $1",
			auth.HashToken(login.RefreshToken))).To(Equal(1))
	})

	It("replaces the row on a second login", func() {
		second := loginAli()

		Expect(countRows("SELECT count(*) FROM refresh_tokens")).To(Equal(1))
		_, err := env.svc.RefreshAccessToken(env.ctx, login.RefreshToken)
		Expect(err).To(HaveOccurred())
		_, err = env.svc.RefreshAccessToken(env.ctx, second.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Logout", func() {
	It("drops the user's refresh token", func() {
		signupAli()
		login := loginAli()

		res, err := env.svc.Logout(env.ctx, login.User.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.FullName).To(Equal("Ali"))
		Expect(countRows("SELECT count(*) FROM refresh_tokens")).To(Equal(0))

		_, err = env.svc.RefreshAccessToken(env.ctx, login.RefreshToken)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Password reset", func() {
	It("sets a new password from the emailed link", func() {
		signupAli()

		_, err := env.svc.RequestPasswordReset(env.ctx, aliEmail)
		Expect(err).NotTo(HaveOccurred())
		token := env.outbox.lastResetToken()

		_, err = env.svc.ResetPassword(env.ctx, token, "N3wPassword")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.svc.SigninWithPassword(env.ctx, aliEmail, aliPassword)
		Expect(err).To(MatchError(ContainSubstring("Invalid password")))
		_, err = env.svc.SigninWithPassword(env.ctx, aliEmail, "N3wPassword")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a tampered token", func() {
		signupAli()
		_, err := env.svc.RequestPasswordReset(env.ctx, aliEmail)
		Expect(err).NotTo(HaveOccurred())

		_, err = env.svc.ResetPassword(env.ctx, env.outbox.lastResetToken()+"x", "N3wPassword")
		Expect(err).To(MatchError(ContainSubstring("Invalid or expired token")))
	})
})
