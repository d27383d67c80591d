// SPDX-License-Identifier: MIT
package build

import "testing"

func TestGetDefaults(t *testing.T) {
	info := Get()

	if info.Name == "" {
		t.Error("Name should never be empty")
	}
	if info.Version == "" {
		t.Error("Version should never be empty")
	}
	if info.Commit == "" || info.Time == "" {
		t.Error("Commit and Time should fall back to placeholders")
	}
}

func TestGetUsesLinkerValues(t *testing.T) {
	oldName, oldVersion := buildName, buildVersion
	defer func() { buildName, buildVersion = oldName, oldVersion }()

	buildName = "speccomp-test"
	buildVersion = "1.2.3"

	info := Get()
	if info.Name != "speccomp-test" {
		t.Errorf("Name = %q, want %q", info.Name, "speccomp-test")
	}
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want %q", info.Version, "1.2.3")
	}
}
