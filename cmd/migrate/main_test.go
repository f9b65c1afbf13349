package main

import (
	"strings"
	"testing"
)

func TestNewMigratorRequiresDatabaseURL(t *testing.T) {
	if _, _, err := newMigrator(""); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestPositiveArg(t *testing.T) {
	cases := []struct {
		args    []string
		want    int
		wantErr bool
	}{
		{args: []string{"down"}, want: 1},
		{args: []string{"down", "3"}, want: 3},
		{args: []string{"down", "0"}, wantErr: true},
		{args: []string{"down", "-2"}, wantErr: true},
		{args: []string{"down", "x"}, wantErr: true},
	}
	for _, tc := range cases {
		got, err := positiveArg(tc.args, 1)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%v: expected error", tc.args)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%v: got %d, %v; want %d", tc.args, got, err, tc.want)
		}
	}
}
