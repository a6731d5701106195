// Package ticket issues and redeems the short-lived, single-use tokens a websocket
// connection presents in its authenticate message.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/DoyleJ11/quiz-live-backend/internal/engine"
)

var (
	ErrInvalidTicket = errors.New("invalid ticket")
	ErrTicketExpired = errors.New("ticket expired")
	ErrTicketUsed    = errors.New("ticket already used")
)

const (
	DefaultTTL       = 2 * time.Minute
	DefaultRejoinTTL = 12 * time.Hour
)

// Token uses. A rejoin credential can only buy a new ticket, never open a connection.
const (
	useSession = "session"
	useRejoin  = "rejoin"
)

// Claims is what a ticket proves about its bearer.
type Claims struct {
	jwt.StandardClaims
	Use      string      `json:"use"`
	GameID   string      `json:"gid"`
	PlayerID string      `json:"pid,omitempty"`
	Role     engine.Role `json:"role"`
}

type Identity struct {
	GameID   string
	PlayerID string
	Role     engine.Role
}

type Issuer struct {
	secret    []byte
	ttl       time.Duration
	rejoinTTL time.Duration
	used      UsedStore
	now       func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, used UsedStore) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, rejoinTTL: DefaultRejoinTTL, used: used, now: time.Now}
}

// Issue signs a ticket for id. Students must carry a player id.
func (i *Issuer) Issue(id Identity) (string, error) {
	switch id.Role {
	case engine.RoleTeacher:
	case engine.RoleStudent:
		if id.PlayerID == "" {
			return "", fmt.Errorf("%w: student ticket without player id", ErrInvalidTicket)
		}
	default:
		return "", fmt.Errorf("%w: role %q", ErrInvalidTicket, id.Role)
	}
	if id.GameID == "" {
		return "", fmt.Errorf("%w: missing game id", ErrInvalidTicket)
	}

	return i.sign(useSession, id, i.ttl)
}

// IssueRejoin signs the long-lived credential a student keeps to reclaim its player id
// after losing the connection. It is bound to one game and one player.
func (i *Issuer) IssueRejoin(gameID, playerID string) (string, error) {
	if gameID == "" || playerID == "" {
		return "", fmt.Errorf("%w: rejoin needs game and player id", ErrInvalidTicket)
	}
	return i.sign(useRejoin, Identity{GameID: gameID, PlayerID: playerID, Role: engine.RoleStudent}, i.rejoinTTL)
}

// VerifyRejoin checks a rejoin credential. It is not burned: a student may reconnect
// more than once.
func (i *Issuer) VerifyRejoin(raw string) (Identity, error) {
	claims, err := i.parse(raw, useRejoin)
	if err != nil {
		return Identity{}, err
	}
	return Identity{GameID: claims.GameID, PlayerID: claims.PlayerID, Role: claims.Role}, nil
}

func (i *Issuer) sign(use string, id Identity, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Use:      use,
		GameID:   id.GameID,
		PlayerID: id.PlayerID,
		Role:     id.Role,
	}

	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("ticket: sign: %w", err)
	}
	return ss, nil
}

func (i *Issuer) parse(raw, use string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return Claims{}, ErrTicketExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if claims.Use != use {
		return Claims{}, fmt.Errorf("%w: %q token presented as %q", ErrInvalidTicket, claims.Use, use)
	}
	if claims.Id == "" || claims.GameID == "" || claims.ExpiresAt == 0 {
		return Claims{}, ErrInvalidTicket
	}
	if claims.Role == engine.RoleStudent && claims.PlayerID == "" {
		return Claims{}, ErrInvalidTicket
	}
	if claims.Role != engine.RoleStudent && claims.Role != engine.RoleTeacher {
		return Claims{}, ErrInvalidTicket
	}
	return claims, nil
}

// Redeem validates a ticket and burns it so it cannot be presented twice.
func (i *Issuer) Redeem(ctx context.Context, raw string) (Identity, error) {
	claims, err := i.parse(raw, useSession)
	if err != nil {
		return Identity{}, err
	}

	ttl := time.Until(time.Unix(claims.ExpiresAt, 0))
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := i.used.MarkUsed(ctx, claims.Id, ttl)
	if err != nil {
		return Identity{}, fmt.Errorf("ticket: mark used: %w", err)
	}
	if !fresh {
		return Identity{}, ErrTicketUsed
	}

	return Identity{GameID: claims.GameID, PlayerID: claims.PlayerID, Role: claims.Role}, nil
}
