package auth

import (
	"context"
	"crypto/subtle"
	"regexp"
	"strings"

	"github.com/ovaphlow/yatrik-auth/internal/account/entity"
)

// Synthetic accounts are bulk-provisioned operational logins with no backing
// record. The password is derived from the identifier:
//
//	<code>-depot@yatrik.com          depot manager, password "<CODE>@2024"
//	driver<N>@<code>-depot.com       driver, shared staff secret
//	conductor<N>@<code>-depot.com    conductor, shared staff secret
var (
	depotManagerTemplate = regexp.MustCompile(`^([a-z0-9]+)-depot@yatrik\.com$`)
	crewTemplate         = regexp.MustCompile(`^(driver|conductor)([0-9]+)@([a-z0-9]+)-depot\.com$`)
)

const syntheticIDPrefix = "synthetic:"

type syntheticProbe struct {
	staffSecret string
}

func newSyntheticProbe(staffSecret string) *syntheticProbe {
	return &syntheticProbe{staffSecret: staffSecret}
}

func (p *syntheticProbe) Name() string { return "synthetic" }

func (p *syntheticProbe) Match(_ context.Context, id Identifier) (*Match, error) {
	if id.Shape != ShapeEmail {
		return nil, nil
	}
	if m := depotManagerTemplate.FindStringSubmatch(id.Value); m != nil {
		code := strings.ToUpper(m[1])
		return &Match{
			Role:      entity.RoleDepotManager,
			Synthetic: true,
			secret:    code + "@2024",
			Account: &entity.Account{
				ID:        syntheticIDPrefix + "depot:" + code,
				Store:     entity.StoreDepotUsers,
				Name:      code + " Depot Manager",
				Email:     id.Value,
				Status:    entity.StatusActive,
				DepotCode: code,
			},
		}, nil
	}
	if p.staffSecret == "" {
		return nil, nil
	}
	if m := crewTemplate.FindStringSubmatch(id.Value); m != nil {
		role, store, prefix := entity.RoleDriver, entity.StoreDrivers, "DRV"
		if m[1] == "conductor" {
			role, store, prefix = entity.RoleConductor, entity.StoreConductors, "CON"
		}
		code := strings.ToUpper(m[3])
		staff := prefix + "-" + code + "-" + m[2]
		return &Match{
			Role:      role,
			Synthetic: true,
			secret:    p.staffSecret,
			Account: &entity.Account{
				ID:        syntheticIDPrefix + m[1] + ":" + code + ":" + m[2],
				Store:     store,
				Name:      strings.ToUpper(m[1][:1]) + m[1][1:] + " " + m[2],
				Email:     id.Value,
				Status:    entity.StatusActive,
				DepotCode: code,
				StaffCode: staff,
			},
		}, nil
	}
	return nil, nil
}

func (m *Match) checkSecret(password string) bool {
	return subtle.ConstantTimeCompare([]byte(m.secret), []byte(password)) == 1
}
