package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/posixpascal/discourse-piratenlogin/internal/auth"
)

func TestHasRequiredRole(t *testing.T) {
	p := Policy{RequiredRole: "Piratenpartei Deutschland", GroupName: "Piraten"}

	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{"no roles", nil, false},
		{"empty roles", []string{}, false},
		{"other roles", []string{"Guest", "invalid"}, false},
		{"required role among others", []string{"Piratenpartei Deutschland", "some"}, true},
		{"required role last", []string{"some", "Piratenpartei Deutschland"}, true},
		{"case differs", []string{"piratenpartei deutschland"}, false},
		{"substring only", []string{"Piratenpartei"}, false},
		{"surrounding whitespace", []string{" Piratenpartei Deutschland"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &auth.IdentityToken{Provider: "piratenlogin", Subject: "1", Roles: tt.roles}
			assert.Equal(t, tt.want, p.HasRequiredRole(token))
		})
	}
}

func TestHasRequiredRole_NilToken(t *testing.T) {
	p := Policy{RequiredRole: "r", GroupName: "g"}
	assert.False(t, p.HasRequiredRole(nil))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Policy{RequiredRole: "r", GroupName: "g"}.Validate())
	assert.Error(t, Policy{GroupName: "g"}.Validate())
	assert.Error(t, Policy{RequiredRole: "r"}.Validate())
}
