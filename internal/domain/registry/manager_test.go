package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/meridian-robotics/rappd/internal/capability"
	"github.com/meridian-robotics/rappd/internal/shared/types"
)

var testPlatform = types.PlatformInfo{
	OS: "linux", Version: "noble", System: "ros2", Platform: "pc", Name: "testbot",
}

type fakeGate struct {
	errs map[string]error
}

func (g *fakeGate) CompatibilityCheck(_ context.Context, required []string) error {
	if len(required) == 0 {
		return nil
	}
	return g.errs[required[0]]
}

func descriptorYAML(name, compat string, caps ...string) string {
	y := fmt.Sprintf("name: %s\nlaunch:\n  command: /opt/rapps/%s\n", name, name)
	if compat != "" {
		y += fmt.Sprintf("compatibility: %s\n", compat)
	}
	if len(caps) > 0 {
		y += "required_capabilities:\n"
		for _, c := range caps {
			y += fmt.Sprintf("  - %s\n", c)
		}
	}
	return y
}

func writeFile(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func loadedManager(t *testing.T, gate Gate, dirs ...string) *Manager {
	t.Helper()
	m := NewManager(testPlatform, gate, nil, nil)
	if err := m.Load(context.Background(), dirs...); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestLoadScansDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", "linux.*.ros2"))
	writeFile(t, dir, "mapping.rapp.yaml", descriptorYAML("mapping", ""))
	writeFile(t, dir, "notes.txt", "not a descriptor")

	m := loadedManager(t, nil, dir)

	installed, runnable := m.Counts()
	if installed != 2 {
		t.Fatalf("installed = %d, want 2", installed)
	}
	if runnable != 2 {
		t.Fatalf("runnable = %d, want 2", runnable)
	}

	list := m.Installed()
	if list[0].Name != "mapping" || list[1].Name != "teleop" {
		t.Errorf("Installed() not sorted by name: %q, %q", list[0].Name, list[1].Name)
	}
}

func TestLoadMergesMultipleDirectories(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFile(t, first, "teleop.rapp.yaml", descriptorYAML("teleop", ""))
	writeFile(t, second, "mapping.rapp.yaml", descriptorYAML("mapping", ""))

	m := loadedManager(t, nil, first, second)

	if !m.IsInstalled("teleop") || !m.IsInstalled("mapping") {
		t.Error("descriptors from both directories should be installed")
	}
}

func TestLoadSkipsIncompatible(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", "linux.noble.ros2"))
	writeFile(t, dir, "legacy.rapp.yaml", descriptorYAML("legacy", "qnx.*.*"))

	m := loadedManager(t, nil, dir)

	if m.IsInstalled("legacy") {
		t.Error("incompatible descriptor should not be installed")
	}
	if !m.IsInstalled("teleop") {
		t.Error("compatible descriptor should be installed")
	}
}

func TestLoadSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", ""))
	writeFile(t, dir, "broken.rapp.yaml", "name: [unclosed")
	writeFile(t, dir, "nameless.rapp.yaml", "launch:\n  command: /bin/true\n")

	m := loadedManager(t, nil, dir)

	installed, _ := m.Counts()
	if installed != 1 {
		t.Fatalf("installed = %d, want 1", installed)
	}
}

func TestLoadExpandsGlobPaths(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"nav", "vision"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(dir, "nav"), "teleop.rapp.yaml", descriptorYAML("teleop", ""))
	writeFile(t, filepath.Join(dir, "vision"), "mapping.rapp.yaml", descriptorYAML("mapping", ""))
	writeFile(t, filepath.Join(dir, "vision"), "README.md", "not a descriptor")

	m := loadedManager(t, nil, filepath.Join(dir, "**", "*.rapp.yaml"))

	if !m.IsInstalled("teleop") || !m.IsInstalled("mapping") {
		t.Error("glob should match descriptors in nested directories")
	}
	if installed, _ := m.Counts(); installed != 2 {
		t.Errorf("installed = %d, want 2", installed)
	}
}

func TestLoadToleratesMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", ""))

	m := loadedManager(t, nil, filepath.Join(dir, "does-not-exist"), dir)

	if !m.IsInstalled("teleop") {
		t.Error("existing directory should still be scanned")
	}
}

func TestLoadReplacesPreviousCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", ""))
	writeFile(t, dir, "mapping.rapp.yaml", descriptorYAML("mapping", ""))

	m := loadedManager(t, nil, dir)

	if err := os.Remove(filepath.Join(dir, "mapping.rapp.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(context.Background(), dir); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if m.IsInstalled("mapping") {
		t.Error("removed descriptor should be gone after reload")
	}
	if !m.IsInstalled("teleop") {
		t.Error("remaining descriptor should survive reload")
	}
}

func TestRunnableWithoutGate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", ""))
	writeFile(t, dir, "slam.rapp.yaml", descriptorYAML("slam", "", "laser_scan"))

	m := loadedManager(t, nil, dir)

	if !m.IsRunnable("teleop") {
		t.Error("app without requirements should be runnable")
	}
	if m.IsRunnable("slam") {
		t.Error("app with requirements should not be runnable without a gate")
	}
}

func TestRunnableGateDecides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "slam.rapp.yaml", descriptorYAML("slam", "", "laser_scan"))
	writeFile(t, dir, "grasp.rapp.yaml", descriptorYAML("grasp", "", "arm"))
	writeFile(t, dir, "dock.rapp.yaml", descriptorYAML("dock", "", "charger"))

	gate := &fakeGate{errs: map[string]error{
		"laser_scan": nil,
		"arm":        &capability.MissingCapabilitiesError{Missing: []string{"arm"}},
		"charger":    fmt.Errorf("%w: dial refused", capability.ErrUnavailable),
	}}
	m := loadedManager(t, gate, dir)

	if !m.IsRunnable("slam") {
		t.Error("satisfiable app should be runnable")
	}
	if m.IsRunnable("grasp") {
		t.Error("app with missing capabilities should not be runnable")
	}
	if m.IsRunnable("dock") {
		t.Error("app should not be runnable while the capability server is unreachable")
	}
	if installed, _ := m.Counts(); installed != 3 {
		t.Errorf("installed = %d, want 3; runnability must not affect installation", installed)
	}
}

func TestFindReturnsDescriptor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", "linux.*.ros2"))

	m := loadedManager(t, nil, dir)

	d, ok := m.Find("teleop")
	if !ok {
		t.Fatal("Find(teleop) = false, want true")
	}
	if d.Compatibility != "linux.*.ros2" {
		t.Errorf("Compatibility = %q", d.Compatibility)
	}
	if _, ok := m.Find("ghost"); ok {
		t.Error("Find(ghost) = true, want false")
	}
}

func TestInstalledInfoMarksRunning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "teleop.rapp.yaml", descriptorYAML("teleop", ""))
	writeFile(t, dir, "mapping.rapp.yaml", descriptorYAML("mapping", ""))

	m := loadedManager(t, nil, dir)

	infos := m.InstalledInfo("teleop")
	for _, info := range infos {
		want := types.StatusStopped
		if info.Name == "teleop" {
			want = types.StatusRunning
		}
		if info.Status != want {
			t.Errorf("%s status = %q, want %q", info.Name, info.Status, want)
		}
	}
}

func TestInfoListsAreNeverNil(t *testing.T) {
	m := NewManager(testPlatform, nil, nil, nil)

	if m.InstalledInfo("") == nil {
		t.Error("InstalledInfo on an empty catalog should be an empty slice, not nil")
	}
	if m.RunnableInfo("") == nil {
		t.Error("RunnableInfo on an empty catalog should be an empty slice, not nil")
	}
}
