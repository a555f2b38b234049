package auth_test

import (
	"errors"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/stayswap/stayswap/internal/auth"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

type mockUserRepo struct {
	passwordHash string
	userID       string
	lookupErr    error
	user         *auth.User
}

func (m *mockUserRepo) GetPasswordForUsername(username string) (string, string, error) {
	if m.lookupErr != nil {
		return "", "", m.lookupErr
	}
	return m.passwordHash, m.userID, nil
}

func (m *mockUserRepo) GetUser(userID int64) (*auth.User, error) {
	if m.user == nil {
		return nil, errors.New("user not found")
	}
	return m.user, nil
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		repo    *mockUserRepo
		tokens  *auth.JWTTokenGenerator
		service *auth.Service
	)

	const password = "correct-horse-battery-staple"

	ginkgo.BeforeEach(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		repo = &mockUserRepo{
			passwordHash: string(hash),
			userID:       "42",
			user:         &auth.User{ID: 42, Email: "sam@mail.com"},
		}
		tokens = auth.NewJWTTokenGenerator(
			"access-secret-for-tests-0123456789ab",
			"refresh-secret-for-tests-0123456789a")
		service = auth.NewService(repo, tokens)
	})

	ginkgo.Describe("Authenticate", func() {
		ginkgo.It("should return a token pair for valid credentials", func() {
			pair, err := service.Authenticate(auth.LoginDTO{Email: "sam@mail.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(pair.AccessToken).NotTo(gomega.BeEmpty())
			gomega.Expect(pair.RefreshToken).NotTo(gomega.BeEmpty())
		})

		ginkgo.It("should reject a wrong password", func() {
			_, err := service.Authenticate(auth.LoginDTO{Email: "sam@mail.com", Password: "nope"})
			gomega.Expect(err).To(gomega.Equal(auth.ErrInvalidCredentials))
		})

		ginkgo.It("should report unknown users as invalid credentials", func() {
			repo.lookupErr = errors.New("no rows")

			_, err := service.Authenticate(auth.LoginDTO{Email: "ghost@mail.com", Password: password})
			gomega.Expect(err).To(gomega.Equal(auth.ErrInvalidCredentials))
		})

		ginkgo.It("should reject an empty login", func() {
			_, err := service.Authenticate(auth.LoginDTO{})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("ValidateAccessToken", func() {
		ginkgo.It("should round-trip the user id through the access token", func() {
			pair, err := service.Authenticate(auth.LoginDTO{Email: "sam@mail.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			claims, err := service.ValidateAccessToken(pair.AccessToken)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("42"))
		})

		ginkgo.It("should reject a tampered token", func() {
			pair, err := service.Authenticate(auth.LoginDTO{Email: "sam@mail.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			_, err = service.ValidateAccessToken(pair.AccessToken + "x")
			gomega.Expect(err).To(gomega.Equal(auth.ErrInvalidToken))
		})
	})

	ginkgo.Describe("RefreshTokens", func() {
		ginkgo.It("should mint a new pair from a refresh token", func() {
			pair, err := service.Authenticate(auth.LoginDTO{Email: "sam@mail.com", Password: password})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			renewed, err := service.RefreshTokens(pair.RefreshToken)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(renewed.AccessToken).NotTo(gomega.BeEmpty())

			claims, err := service.ValidateAccessToken(renewed.AccessToken)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("42"))
		})

		ginkgo.It("should reject garbage refresh tokens", func() {
			_, err := service.RefreshTokens("not-a-token")
			gomega.Expect(err).To(gomega.Equal(auth.ErrInvalidToken))
		})
	})
})
