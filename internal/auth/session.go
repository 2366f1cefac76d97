package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
	"github.com/ovaphlow/yatrik-auth/pkg/utilities"
)

const (
	crewSessionTTL    = 12 * time.Hour
	defaultSessionTTL = 7 * 24 * time.Hour
)

var redirectPaths = map[entity.Role]string{
	entity.RoleAdmin:        "/admin",
	entity.RoleDepotManager: "/depot",
	entity.RoleDriver:       "/driver",
	entity.RoleConductor:    "/conductor",
	entity.RoleVendor:       "/vendor/home",
	entity.RoleStudent:      "/student/dashboard",
	entity.RolePassenger:    "/pax",
}

// RedirectPath returns the landing route for role.
func RedirectPath(role entity.Role) string {
	if p, ok := redirectPaths[role]; ok {
		return p
	}
	return "/dashboard"
}

// SessionTTL is shift length for crew roles and a week for everyone else.
func SessionTTL(role entity.Role) time.Duration {
	if role == entity.RoleDriver || role == entity.RoleConductor {
		return crewSessionTTL
	}
	return defaultSessionTTL
}

// Session is a minted token plus the route the client should land on.
type Session struct {
	Token        string
	ExpiresAt    time.Time
	RedirectPath string
	Claims       jwt.MapClaims
}

// Minter signs HS256 session tokens.
type Minter struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewMinter(secret, issuer string, now func() time.Time) *Minter {
	if now == nil {
		now = time.Now
	}
	return &Minter{secret: []byte(secret), issuer: issuer, now: now}
}

// Mint builds and signs the session for a verified match.
func (m *Minter) Mint(match *Match) (*Session, error) {
	acc := match.Account
	role := match.Role
	now := m.now()
	exp := now.Add(SessionTTL(role))

	claims := jwt.MapClaims{
		"iss":      m.issuer,
		"sub":      acc.ID,
		"userId":   acc.ID,
		"role":     strings.ToUpper(string(role)),
		"roleType": string(role.Type()),
		"name":     acc.Name,
		"email":    acc.Email,
		"iat":      now.Unix(),
		"exp":      exp.Unix(),
		"jti":      utilities.NewKSUID(),
	}
	setIf(claims, "depotId", acc.DepotID)
	setIf(claims, "depotCode", acc.DepotCode)
	setIf(claims, "depotName", acc.DepotName)
	switch role {
	case entity.RoleVendor:
		claims["vendorId"] = acc.ID
	case entity.RoleStudent:
		claims["studentId"] = acc.ID
	case entity.RoleDriver:
		claims["driverId"] = staffOrID(acc)
	case entity.RoleConductor:
		claims["conductorId"] = staffOrID(acc)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Token: signed, ExpiresAt: exp, RedirectPath: RedirectPath(role), Claims: claims}, nil
}

// Parse verifies a token minted by this service and returns its claims.
func (m *Minter) Parse(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

var errNoBearer = errors.New("missing bearer token")

func bearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errNoBearer
	}
	return strings.TrimSpace(header[len(prefix):]), nil
}

func setIf(c jwt.MapClaims, key, v string) {
	if v != "" {
		c[key] = v
	}
}

func staffOrID(acc *entity.Account) string {
	if acc.StaffCode != "" {
		return acc.StaffCode
	}
	return acc.ID
}
