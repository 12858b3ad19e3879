package common

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerCarriesArgs(t *testing.T) {
	var buf bytes.Buffer
	ctx := CreateExtCtxWithLogArgsAndHandler(context.Background(), &LoggerArgs{
		RequestId: "req1",
		PatronId:  "p1",
		Driver:    "Koha",
		Other:     map[string]string{"library": "lib1"},
	}, slog.NewTextHandler(&buf, nil))

	ctx.Logger().Info("hello")
	line := buf.String()
	assert.Contains(t, line, "requestId=req1")
	assert.Contains(t, line, "patronId=p1")
	assert.Contains(t, line, "driver=Koha")
	assert.Contains(t, line, "library=lib1")
	assert.Contains(t, line, "process=")
}

func TestWithArgsKeepsContextAndHandler(t *testing.T) {
	var buf bytes.Buffer
	type key struct{}
	base := context.WithValue(context.Background(), key{}, "value")
	ctx := CreateExtCtxWithLogArgsAndHandler(base, nil, slog.NewTextHandler(&buf, nil))

	child := ctx.WithArgs(&LoggerArgs{PatronId: "p2"})
	assert.Equal(t, "value", child.Value(key{}))

	child.Logger().Info("child")
	assert.Contains(t, buf.String(), "patronId=p2")
}

func TestCreateExtCtxWithArgsUsesDefaultHandler(t *testing.T) {
	ctx := CreateExtCtxWithArgs(context.Background(), nil)
	assert.NotNil(t, ctx.Logger())
}
