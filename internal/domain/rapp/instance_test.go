package rapp

import (
	"testing"
	"time"

	"github.com/meridian-robotics/rappd/internal/shared/types"
)

func testDescriptor(command string, args ...string) *Descriptor {
	return &Descriptor{
		Name:        "test_app",
		DisplayName: "Test App",
		Launch:      LaunchSpec{Command: command, Args: args},
		Interface: types.Endpoints{
			Publishers:  []string{"odom"},
			Subscribers: []string{"cmd_vel"},
		},
	}
}

func TestInstanceStartStop(t *testing.T) {
	inst := NewInstance(testDescriptor("/bin/sh", "-c", "sleep 60"), nil)

	eps, err := inst.Start("robo/application", nil, false)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !inst.IsRunning() {
		t.Fatal("instance should be running after start")
	}
	if len(eps.Publishers) != 1 || eps.Publishers[0] != "/robo/application/odom" {
		t.Errorf("unexpected resolved publishers: %v", eps.Publishers)
	}

	stopped, err := inst.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if inst.IsRunning() {
		t.Error("instance should not be running after stop")
	}
	if len(stopped.Publishers) != 1 || stopped.Publishers[0] != "/robo/application/odom" {
		t.Errorf("stop should return the endpoints in use: %v", stopped.Publishers)
	}
}

func TestInstanceDoubleStart(t *testing.T) {
	inst := NewInstance(testDescriptor("/bin/sh", "-c", "sleep 60"), nil)

	if _, err := inst.Start("app", nil, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer inst.Stop()

	if _, err := inst.Start("app", nil, false); err == nil {
		t.Error("second start should fail while running")
	}
}

func TestInstanceNaturalTermination(t *testing.T) {
	inst := NewInstance(testDescriptor("/bin/sh", "-c", "exit 0"), nil)

	if _, err := inst.Start("app", nil, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for inst.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("instance never observed process exit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Stopping an already-exited instance reports the endpoints
	// without error.
	if _, err := inst.Stop(); err != nil {
		t.Errorf("Stop after natural exit should succeed: %v", err)
	}
}

func TestInstanceStopKillsStubbornProcess(t *testing.T) {
	inst := NewInstance(testDescriptor("/bin/sh", "-c", `trap "" TERM; while :; do sleep 0.2; done`), nil)
	inst.termGrace = 100 * time.Millisecond

	if _, err := inst.Start("app", nil, false); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	start := time.Now()
	if _, err := inst.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if inst.IsRunning() {
		t.Error("instance should not be running after kill")
	}
	// The SIGTERM grace must have elapsed before the kill landed, and
	// the whole stop must stay well inside the kill grace bound.
	if elapsed := time.Since(start); elapsed < inst.termGrace {
		t.Errorf("stop returned in %v, before the SIGTERM grace elapsed", elapsed)
	} else if elapsed > inst.termGrace+inst.killGrace {
		t.Errorf("stop took %v, exceeding the bounded kill wait", elapsed)
	}
}

func TestInstanceStopBeforeStart(t *testing.T) {
	inst := NewInstance(testDescriptor("/bin/true"), nil)
	if _, err := inst.Stop(); err == nil {
		t.Error("stop before start should fail")
	}
}

func TestInstanceLaunchFailure(t *testing.T) {
	inst := NewInstance(testDescriptor("/nonexistent/binary"), nil)
	if _, err := inst.Start("app", nil, false); err == nil {
		t.Error("start should fail for missing binary")
	}
	if inst.IsRunning() {
		t.Error("failed launch should not be running")
	}
}

func TestResolveEndpoints(t *testing.T) {
	declared := types.Endpoints{
		Subscribers: []string{"cmd_vel", "/global/estop"},
		Publishers:  []string{"odom"},
		Services:    []string{"set_pose"},
	}
	remaps := map[string]string{
		"odom":     "base_odom",
		"set_pose": "/fleet/set_pose",
	}

	got := ResolveEndpoints(declared, "/robo/application/", remaps)

	if got.Subscribers[0] != "/robo/application/cmd_vel" {
		t.Errorf("relative name should be namespaced: %s", got.Subscribers[0])
	}
	if got.Subscribers[1] != "/global/estop" {
		t.Errorf("absolute name should pass through: %s", got.Subscribers[1])
	}
	if got.Publishers[0] != "/robo/application/base_odom" {
		t.Errorf("remapped relative name should be namespaced: %s", got.Publishers[0])
	}
	if got.Services[0] != "/fleet/set_pose" {
		t.Errorf("remapped absolute name should pass through: %s", got.Services[0])
	}
	if got.ActionClients != nil {
		t.Errorf("empty category should stay empty, got %v", got.ActionClients)
	}
}
