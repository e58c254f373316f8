package plug

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReloader struct {
	called bool
	err    error
}

func (r *stubReloader) ReloadFromDisk() error {
	r.called = true

	return r.err
}

func TestControlServer_ListInfoOnOffReload(t *testing.T) {
	disp, _ := newTestDispatcher(t)
	reloader := &stubReloader{}

	sock := filepath.Join(t.TempDir(), "plugd.sock")
	srv, err := NewControlServer(sock, disp, reloader, nil)
	require.NoError(t, err)
	defer srv.Close()

	go srv.Serve()

	client, err := DialControl(sock, time.Second)
	require.NoError(t, err)
	defer client.Close()

	listResp, err := client.Call(ControlRequest{Cmd: "list"})
	require.NoError(t, err)
	require.True(t, listResp.OK)
	require.Len(t, listResp.List, 1)
	assert.Equal(t, testDeviceMAC.String(), listResp.List[0].MAC)
	assert.Equal(t, "kitchen", listResp.List[0].Alias)

	infoResp, err := client.Call(ControlRequest{Cmd: "info", MAC: testDeviceMAC.String()})
	require.NoError(t, err)
	require.True(t, infoResp.OK)
	assert.Equal(t, "kitchen", infoResp.Info.Alias)

	onResp, err := client.Call(ControlRequest{Cmd: "on", MAC: testDeviceMAC.String()})
	require.NoError(t, err)
	assert.True(t, onResp.OK)

	badResp, err := client.Call(ControlRequest{Cmd: "on", MAC: "not-a-mac"})
	require.NoError(t, err)
	assert.False(t, badResp.OK)

	reloadResp, err := client.Call(ControlRequest{Cmd: "reload"})
	require.NoError(t, err)
	assert.True(t, reloadResp.OK)
	assert.True(t, reloader.called)

	unknownResp, err := client.Call(ControlRequest{Cmd: "bogus"})
	require.NoError(t, err)
	assert.False(t, unknownResp.OK)
}
