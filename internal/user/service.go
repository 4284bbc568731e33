package user

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"chat-relay/internal/mail"
)

// store is what the service needs from the repository. Declared here so
// tests can substitute an in-memory implementation.
type store interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, id int, name, email string) (*User, error)
	DeleteUser(ctx context.Context, id int) error
}

type Service struct {
	repo      store
	cache     *Cache
	mailer    mail.Sender
	jwtSecret string
	validate  *validator.Validate
}

type Claims struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewService wires the admin user service. cache may be nil (reads go
// straight to the repository); mailer may be nil (no welcome mail).
func NewService(repo store, cache *Cache, mailer mail.Sender, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		mailer:    mailer,
		jwtSecret: jwtSecret,
		validate:  validator.New(),
	}
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:    u.ID,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat-relay",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})
	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}
	return claims.ID, claims.Email, nil
}

func (s *Service) Create(ctx context.Context, req *CreateUserRequest) (*User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.CreateUser(ctx, &User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
	})
	if err != nil {
		return nil, err
	}

	// Welcome mail is best-effort; account creation already succeeded.
	if s.mailer != nil {
		subject := "Welcome to chat-relay"
		body := fmt.Sprintf("Hi %s,\n\nYour chat account is ready. Sign in with %s.\n", u.Name, u.Email)
		if err := s.mailer.Send(u.Email, subject, body); err != nil {
			log.Printf("welcome mail to %s: %v", u.Email, err)
		}
	}

	return u, nil
}

func (s *Service) Get(ctx context.Context, id int) (*User, error) {
	if s.cache != nil {
		if u, ok := s.cache.GetUser(ctx, id); ok {
			return u, nil
		}
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetUser(ctx, u)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) Update(ctx context.Context, id int, req *UpdateUserRequest) (*User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.repo.UpdateUser(ctx, id, req.Name, req.Email)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return nil
}
