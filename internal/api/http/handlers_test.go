package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-robotics/rappd/internal/domain/lifecycle"
	"github.com/meridian-robotics/rappd/internal/domain/rapp"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

type fakeLifecycle struct {
	startOut   lifecycle.StartOutcome
	stopOut    lifecycle.StopOutcome
	current    *rapp.Descriptor
	lastName   string
	lastRemaps map[string]string
	stopCalls  int
}

func (f *fakeLifecycle) StartApp(_ context.Context, name string, remaps map[string]string) lifecycle.StartOutcome {
	f.lastName = name
	f.lastRemaps = remaps
	return f.startOut
}

func (f *fakeLifecycle) StopApp(context.Context) lifecycle.StopOutcome {
	f.stopCalls++
	return f.stopOut
}

func (f *fakeLifecycle) Current() (*rapp.Descriptor, bool) {
	return f.current, f.current != nil
}

func (f *fakeLifecycle) CurrentName() string {
	if f.current == nil {
		return ""
	}
	return f.current.Name
}

type fakeControl struct {
	result     bool
	controller string
	namespace  string
	lastRemote string
	lastCancel bool
	lastNS     string
}

func (f *fakeControl) Invite(_ context.Context, remote string, cancel bool, ns string) bool {
	f.lastRemote = remote
	f.lastCancel = cancel
	f.lastNS = ns
	return f.result
}

func (f *fakeControl) Controller() string { return f.controller }
func (f *fakeControl) Namespace() string  { return f.namespace }

type fakeCatalog struct {
	installed []types.RappInfo
	runnable  []types.RappInfo
}

func (f *fakeCatalog) InstalledInfo(string) []types.RappInfo { return f.installed }
func (f *fakeCatalog) RunnableInfo(string) []types.RappInfo  { return f.runnable }
func (f *fakeCatalog) Counts() (int, int)                    { return len(f.installed), len(f.runnable) }

type fixture struct {
	router  *gin.Engine
	apps    *fakeLifecycle
	control *fakeControl
	catalog *fakeCatalog
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)

	f := &fixture{
		apps:    &fakeLifecycle{},
		control: &fakeControl{namespace: "application"},
		catalog: &fakeCatalog{},
	}

	platform := types.PlatformInfo{
		OS: "linux", Version: "noble", System: "ros2", Platform: "pc", Name: "turtlebot",
	}
	h := NewHandlers(platform, f.catalog, f.apps, f.control, nil, "1.2.0")

	f.router = gin.New()
	h.Register(f.router)
	return f
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	f.router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func (f *fixture) post(t *testing.T, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestPlatformInfo(t *testing.T) {
	f := newFixture()

	code, body := f.get(t, "/platform_info")
	require.Equal(t, http.StatusOK, code)

	info, ok := body["platform_info"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "linux", info["os"])
	assert.Equal(t, "noble", info["version"])
	assert.Equal(t, "ros2", info["system"])
	assert.Equal(t, "turtlebot", info["name"])
	assert.Equal(t, "1.2.0", body["version"])
}

func TestListInstalledApps(t *testing.T) {
	f := newFixture()
	f.catalog.installed = []types.RappInfo{
		{Name: "mapping", Status: types.StatusStopped},
		{Name: "teleop", Status: types.StatusStopped},
	}

	code, body := f.get(t, "/apps/installed")
	require.Equal(t, http.StatusOK, code)

	apps, ok := body["apps"].([]interface{})
	require.True(t, ok)
	assert.Len(t, apps, 2)
}

func TestListRunnableApps(t *testing.T) {
	f := newFixture()
	f.catalog.runnable = []types.RappInfo{{Name: "teleop", Status: types.StatusStopped}}

	code, body := f.get(t, "/apps/runnable")
	require.Equal(t, http.StatusOK, code)

	apps, ok := body["apps"].([]interface{})
	require.True(t, ok)
	assert.Len(t, apps, 1)
}

func TestStatusIdle(t *testing.T) {
	f := newFixture()

	code, body := f.get(t, "/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, types.StatusStopped, body["application_status"])
	assert.Nil(t, body["application"])
	assert.Equal(t, types.NoController, body["remote_controller"])
	assert.Equal(t, "application", body["application_namespace"])
}

func TestStatusRunningUnderControl(t *testing.T) {
	f := newFixture()
	f.apps.current = &rapp.Descriptor{Name: "teleop", DisplayName: "Teleop", Compatibility: "linux.*.ros2"}
	f.control.controller = "operator_console"
	f.control.namespace = "gateway_bob/application"

	code, body := f.get(t, "/status")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, types.StatusRunning, body["application_status"])
	assert.Equal(t, "operator_console", body["remote_controller"])
	assert.Equal(t, "gateway_bob/application", body["application_namespace"])

	app, ok := body["application"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "teleop", app["name"])
	assert.Equal(t, types.StatusRunning, app["status"])
}

func TestInvite(t *testing.T) {
	f := newFixture()
	f.control.result = true

	code, body := f.post(t, "/invite", map[string]interface{}{
		"remote_target_name":    "operator_console",
		"application_namespace": "/custom/ns",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["result"])
	assert.Equal(t, "operator_console", f.control.lastRemote)
	assert.Equal(t, "/custom/ns", f.control.lastNS)
	assert.False(t, f.control.lastCancel)
}

func TestInviteCancel(t *testing.T) {
	f := newFixture()
	f.control.result = true

	code, body := f.post(t, "/invite", map[string]interface{}{
		"remote_target_name": "operator_console",
		"cancel":             true,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["result"])
	assert.True(t, f.control.lastCancel)
}

func TestInviteRequiresRemoteTargetName(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/invite", map[string]interface{}{"cancel": true})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "error")
}

func TestStartApp(t *testing.T) {
	f := newFixture()
	f.apps.startOut = lifecycle.StartOutcome{
		Started:   true,
		Message:   "started rapp [teleop]",
		Namespace: "gateway_bob/application",
	}

	code, body := f.post(t, "/apps/start", map[string]interface{}{
		"name":       "teleop",
		"remappings": map[string]string{"cmd_vel": "/teleop/cmd_vel"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["started"])
	assert.Equal(t, "started rapp [teleop]", body["message"])
	assert.Equal(t, "gateway_bob/application", body["app_namespace"])
	assert.Equal(t, "teleop", f.apps.lastName)
	assert.Equal(t, "/teleop/cmd_vel", f.apps.lastRemaps["cmd_vel"])
}

func TestStartAppRequiresName(t *testing.T) {
	f := newFixture()

	code, body := f.post(t, "/apps/start", map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "error")
}

func TestStartAppRefusalIsStillOK(t *testing.T) {
	f := newFixture()
	f.apps.startOut = lifecycle.StartOutcome{
		Message: "an application is already running [mapping]",
	}

	code, body := f.post(t, "/apps/start", map[string]interface{}{"name": "teleop"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["started"])
	assert.Equal(t, "an application is already running [mapping]", body["message"])
}

func TestStopApp(t *testing.T) {
	f := newFixture()
	f.apps.stopOut = lifecycle.StopOutcome{Stopped: true, Message: "stopped rapp [teleop]"}

	code, body := f.post(t, "/apps/stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["stopped"])
	assert.Equal(t, float64(lifecycle.ErrorCodeNone), body["error_code"])
	assert.Equal(t, 1, f.apps.stopCalls)
}

func TestStopAppNotRunning(t *testing.T) {
	f := newFixture()
	f.apps.stopOut = lifecycle.StopOutcome{
		ErrorCode: lifecycle.ErrorCodeNotRunning,
		Message:   "tried to stop a rapp, but no rapp found running",
	}

	code, body := f.post(t, "/apps/stop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["stopped"])
	assert.Equal(t, float64(lifecycle.ErrorCodeNotRunning), body["error_code"])
	assert.Equal(t, "tried to stop a rapp, but no rapp found running", body["message"])
}

func TestHealth(t *testing.T) {
	f := newFixture()
	f.catalog.installed = []types.RappInfo{{Name: "teleop"}}

	code, body := f.get(t, "/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	catalog, ok := body["catalog"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), catalog["installed"])
}
