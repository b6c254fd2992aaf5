package models

import (
	"os"
	"path/filepath"
	"testing"
)

func validGroups() []TaskGroupConfig {
	return []TaskGroupConfig{
		{
			GroupName: "nightly",
			Cron:      "0 2 * * *",
			Tasks: []TaskConfig{
				{Name: "extract", FilePath: "builtin/noop"},
				{Name: "load", FilePath: "builtin/noop", KillOnFail: true},
			},
		},
	}
}

func TestValidateGroupConfigs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func([]TaskGroupConfig) []TaskGroupConfig
		wantErr bool
	}{
		{name: "valid", mutate: func(g []TaskGroupConfig) []TaskGroupConfig { return g }},
		{
			name: "missing group name",
			mutate: func(g []TaskGroupConfig) []TaskGroupConfig {
				g[0].GroupName = ""
				return g
			},
			wantErr: true,
		},
		{
			name: "duplicate group name",
			mutate: func(g []TaskGroupConfig) []TaskGroupConfig {
				return append(g, g[0])
			},
			wantErr: true,
		},
		{
			name: "missing cron",
			mutate: func(g []TaskGroupConfig) []TaskGroupConfig {
				g[0].Cron = ""
				return g
			},
			wantErr: true,
		},
		{
			name: "no tasks",
			mutate: func(g []TaskGroupConfig) []TaskGroupConfig {
				g[0].Tasks = nil
				return g
			},
			wantErr: true,
		},
		{
			name: "task without file path",
			mutate: func(g []TaskGroupConfig) []TaskGroupConfig {
				g[0].Tasks[0].FilePath = ""
				return g
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroupConfigs(tt.mutate(validGroups()))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateGroupConfigs error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadGroupConfigs(t *testing.T) {
	t.Parallel()
	doc := `[
		{
			"groupName": "hourly",
			"cron": "0 * * * *",
			"warningHours": 2,
			"tasks": [
				{"name": "sync", "filePath": "builtin/noop", "params": {"limit": 10}, "killOnFail": true}
			]
		}
	]`
	path := filepath.Join(t.TempDir(), "groups.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	groups, err := LoadGroupConfigs(path)
	if err != nil {
		t.Fatalf("LoadGroupConfigs error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.GroupName != "hourly" || g.Cron != "0 * * * *" {
		t.Fatalf("unexpected group: %+v", g)
	}
	if !g.Tasks[0].KillOnFail {
		t.Fatal("killOnFail not parsed")
	}
	if g.Tasks[0].Params["limit"] != float64(10) {
		t.Fatalf("params not parsed: %v", g.Tasks[0].Params)
	}
}

func TestLoadGroupConfigsMalformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "groups.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGroupConfigs(path); err == nil {
		t.Fatal("expected error for malformed document")
	}
}
