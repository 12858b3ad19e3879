package driver

import (
	"context"
	"testing"

	"github.com/indexdata/patronlink/common"
	"github.com/stretchr/testify/assert"
)

func TestResultHelpers(t *testing.T) {
	ok := Ok("done")
	assert.True(t, ok.Success)
	assert.Equal(t, "done", ok.Message)

	fail := Fail("nope")
	assert.False(t, fail.Success)

	assert.False(t, NotSupported().Success)
	assert.Equal(t, common.MsgNotConnected, NotConnected().Message)
}

func TestUnsupportedDefaults(t *testing.T) {
	ctx := common.CreateExtCtxWithArgs(context.Background(), nil)
	var d Unsupported

	assert.Equal(t, NotSupported(), d.FreezeHold(ctx, nil, "h1", ""))
	assert.Equal(t, NotSupported(), d.ThawHold(ctx, nil, "h1"))
	assert.Equal(t, NotSupported(), d.ReturnCheckout(ctx, nil, "tx1"))
	assert.Equal(t, NotSupported(), d.Checkout(ctx, nil, "b1").Result)
	assert.Equal(t, NotSupported(), d.PlaceItemHold(ctx, nil, "b1", "i1", "").Result)
	assert.Equal(t, NotSupported(), d.RenewAll(ctx, nil).Result)
	assert.Equal(t, NotSupported(), d.SelfRegister(ctx, nil).Result)

	fines, err := d.Fines(ctx, nil, false)
	assert.Nil(t, err)
	assert.Empty(t, fines)

	count, err := d.MaterialsRequestCount(ctx, nil)
	assert.Nil(t, err)
	assert.Zero(t, count)
}
