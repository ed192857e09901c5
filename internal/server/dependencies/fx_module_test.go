package dependencies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/matching"
	"github.com/charm-corp/ai-value-matching-sub001/internal/metrics"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/biz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/db"
)

func TestModule(t *testing.T) {
	var service *biz.Service

	app := fxtest.New(t,
		fx.Supply(
			log.Config{Name: "test", Level: "error"},
			db.Config{Dialect: "memory"},
			metrics.Config{},
			biz.MatchingConfig{Enabled: false},
		),
		Module,
		biz.Module,
		fx.Populate(&service),
	)

	app.RequireStart()
	t.Cleanup(app.RequireStop)

	require.NotNil(t, service)
	assert.Len(t, service.Catalogue().Types(), 5)

	u1 := authz.NewPrincipal("u1", authz.RoleUser)

	created, err := service.Create(context.Background(), u1, matching.TypeProfile, objects.Document{
		"displayName": "Kim",
	})
	require.NoError(t, err)

	owner, ok := created.IDField(matching.FieldUserID)
	require.True(t, ok)
	assert.Equal(t, objects.ID("u1"), owner)
}
