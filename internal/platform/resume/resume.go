// Package resume issues signed tokens that let a client pick up where it left
// off: which patient and which visit were open.
package resume

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "eyeexam"

var (
	ErrInvalidToken = errors.New("invalid resume token")
	ErrNoSecret     = errors.New("resume token secret is empty")
)

type Claims struct {
	jwt.RegisteredClaims
	PatientID string `json:"patient_id"`
	VisitID   string `json:"visit_id"`
}

// State is what a resume token carries.
type State struct {
	PatientID string    `json:"patient_id"`
	VisitID   uuid.UUID `json:"visit_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Signer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs patientID and visitID with an expiry of now plus the TTL.
func (s *Signer) Issue(patientID string, visitID uuid.UUID) (string, *State, error) {
	if patientID == "" || visitID == uuid.Nil {
		return "", nil, fmt.Errorf("resume: patient_id and visit_id are required")
	}
	now := s.now()
	exp := now.Add(s.ttl).Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		PatientID: patientID,
		VisitID:   visitID.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("resume: sign: %w", err)
	}
	return signed, &State{PatientID: patientID, VisitID: visitID, ExpiresAt: exp.UTC()}, nil
}

// Parse verifies token and returns its state. Any failure, expiry included,
// wraps ErrInvalidToken.
func (s *Signer) Parse(token string) (*State, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	visitID, err := uuid.Parse(claims.VisitID)
	if err != nil || claims.PatientID == "" {
		return nil, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}
	return &State{PatientID: claims.PatientID, VisitID: visitID, ExpiresAt: claims.ExpiresAt.Time.UTC()}, nil
}
