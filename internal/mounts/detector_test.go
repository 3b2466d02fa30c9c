package mounts

import "testing"

func TestDetectMounts(t *testing.T) {
	mounts, err := DetectMounts()
	if err != nil {
		t.Fatalf("DetectMounts: %v", err)
	}

	// Every Linux host has at least the root filesystem
	if len(mounts) == 0 {
		t.Fatal("no mounts detected")
	}

	foundRoot := false
	for devID, m := range mounts {
		if m.DeviceID != devID {
			t.Errorf("map key %d != DeviceID %d", devID, m.DeviceID)
		}
		if m.Mountpoint == "/" {
			foundRoot = true
		}
		if virtualFSTypes[m.FSType] {
			t.Errorf("virtual filesystem %s (%s) not filtered", m.FSType, m.Mountpoint)
		}
	}
	if !foundRoot {
		t.Error("root filesystem missing from mount table")
	}
}

func TestGetMountPointByDeviceID(t *testing.T) {
	mounts := map[uint32]MountInfo{
		0x801: {Mountpoint: "/", DeviceID: 0x801},
		0x802: {Mountpoint: "/home", DeviceID: 0x802},
	}

	if got := GetMountPointByDeviceID(mounts, 0x802); got != "/home" {
		t.Errorf("GetMountPointByDeviceID(0x802) = %q", got)
	}
	if got := GetMountPointByDeviceID(mounts, 0x999); got != "" {
		t.Errorf("GetMountPointByDeviceID(unknown) = %q, want empty", got)
	}
}

func TestMountsEqualAndDiff(t *testing.T) {
	a := map[uint32]MountInfo{
		1: {Mountpoint: "/", DeviceID: 1},
		2: {Mountpoint: "/home", DeviceID: 2},
	}
	b := map[uint32]MountInfo{
		1: {Mountpoint: "/", DeviceID: 1},
		3: {Mountpoint: "/mnt/data", DeviceID: 3},
	}

	if mountsEqual(a, b) {
		t.Error("different mount tables reported equal")
	}
	if !mountsEqual(a, a) {
		t.Error("identical mount tables reported unequal")
	}

	added, removed := diffMounts(a, b)
	if len(added) != 1 || added[0].DeviceID != 3 {
		t.Errorf("added = %v", added)
	}
	if len(removed) != 1 || removed[0].DeviceID != 2 {
		t.Errorf("removed = %v", removed)
	}
}
