package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/storefront-go/internal/config"
	"github.com/storefront/storefront-go/internal/mailer"
	"github.com/storefront/storefront-go/internal/model"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "seed", "--in-memory"} {
		assert.Contains(t, output, sub)
	}
}

func TestMigrateCommand_RejectsUnknownDirection(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate", "sideways"})

	assert.Error(t, cmd.Execute())
}

func TestOpenStores_InMemorySeeds(t *testing.T) {
	a := &app{cfg: config.Config{
		SeedAdminEmail:    "admin@b.com",
		SeedAdminPassword: "Admin123!",
	}}
	ctx := context.Background()

	st, err := a.openStores(ctx, serveOptions{inMemory: true})
	require.NoError(t, err)
	defer st.Close()

	admin, err := st.users.GetByEmail(ctx, "admin@b.com")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)

	categories, err := st.categories.List(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, categories)
	assert.Equal(t, model.CategoryActive, categories[0].Status)
}

func TestNotifier_FallsBackToLogMailer(t *testing.T) {
	a := &app{cfg: config.Config{FrontendURL: "http://localhost:3000"}}

	n, closeFn, err := a.notifier()
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, mailer.LogMailer{}, n)
}

func TestNotifier_SMTP(t *testing.T) {
	a := &app{cfg: config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587}}

	n, closeFn, err := a.notifier()
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &mailer.Mailer{}, n)
}
