package bootstrap

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"batch-transcriber/internal/domain"
)

// fakeInstaller builds an installer whose PATH is the given set of tool names.
func fakeInstaller(goos string, onPath map[string]bool, run func(name string, args ...string) error) *installer {
	return &installer{
		goos: goos,
		lookPath: func(name string) (string, error) {
			if onPath[name] {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		},
		runCommand: run,
		download: func(string, string, time.Duration) error {
			return errors.New("offline")
		},
	}
}

// TestInstallFFmpegFallsBackToNextManager checks a failing manager does not stop the search.
func TestInstallFFmpegFallsBackToNextManager(t *testing.T) {
	onPath := map[string]bool{"apt-get": true, "dnf": true}
	var ran []string
	inst := fakeInstaller("linux", onPath, func(name string, args ...string) error {
		ran = append(ran, name+" "+strings.Join(args, " "))
		if name == "apt-get" {
			return errors.New("locked")
		}
		onPath["ffmpeg"] = true
		onPath["ffprobe"] = true
		return nil
	})

	if err := inst.installFFmpeg(); err != nil {
		t.Fatalf("installFFmpeg() error = %v", err)
	}
	want := []string{"apt-get update", "dnf install -y ffmpeg"}
	if !reflect.DeepEqual(ran, want) {
		t.Fatalf("commands = %v, want %v", ran, want)
	}
}

// TestInstallFFmpegElevatesOnLinux checks sudo is tried after a plain failure.
func TestInstallFFmpegElevatesOnLinux(t *testing.T) {
	onPath := map[string]bool{"apt-get": true, "sudo": true}
	var ran []string
	inst := fakeInstaller("linux", onPath, func(name string, args ...string) error {
		ran = append(ran, name)
		if name != "sudo" {
			return errors.New("permission denied")
		}
		onPath["ffmpeg"] = true
		onPath["ffprobe"] = true
		return nil
	})

	if err := inst.installFFmpeg(); err != nil {
		t.Fatalf("installFFmpeg() error = %v", err)
	}
	if len(ran) < 2 || ran[1] != "sudo" {
		t.Fatalf("commands = %v, want sudo retry", ran)
	}
}

// TestInstallFFmpegWithoutManagers reports a clear error.
func TestInstallFFmpegWithoutManagers(t *testing.T) {
	inst := fakeInstaller("darwin", map[string]bool{}, func(string, ...string) error { return nil })

	err := inst.installFFmpeg()
	if err == nil || !strings.Contains(err.Error(), "no supported package manager") {
		t.Fatalf("err = %v, want no package manager error", err)
	}
}

// TestInstallYtDlpDownloadsReleaseWhenNoManager checks the standalone binary fallback.
func TestInstallYtDlpDownloadsReleaseWhenNoManager(t *testing.T) {
	binDir := t.TempDir()
	onPath := map[string]bool{}
	inst := fakeInstaller("linux", onPath, func(string, ...string) error { return nil })

	var gotURL string
	inst.download = func(dest, url string, _ time.Duration) error {
		gotURL = url
		onPath["yt-dlp"] = true
		return os.WriteFile(dest, []byte("#!/bin/sh\n"), 0o644)
	}

	if err := inst.installYtDlp(binDir); err != nil {
		t.Fatalf("installYtDlp() error = %v", err)
	}
	if gotURL != ytDlpReleaseBase+"yt-dlp" {
		t.Fatalf("url = %s", gotURL)
	}
	info, err := os.Stat(filepath.Join(binDir, "yt-dlp"))
	if err != nil {
		t.Fatalf("stat binary: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("binary mode = %v, want executable", info.Mode())
	}
}

// TestYtDlpAssetPerOS checks release asset names.
func TestYtDlpAssetPerOS(t *testing.T) {
	if asset, bin := ytDlpAsset("windows"); asset != "yt-dlp.exe" || bin != "yt-dlp.exe" {
		t.Fatalf("windows asset = %s/%s", asset, bin)
	}
	if asset, bin := ytDlpAsset("darwin"); asset != "yt-dlp_macos" || bin != "yt-dlp" {
		t.Fatalf("darwin asset = %s/%s", asset, bin)
	}
}

// TestDownloadURLToFile checks the body lands at the destination without temp leftovers.
func TestDownloadURLToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("binary"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "bin", "tool")
	if err := downloadURLToFile(dest, srv.URL+"/tool", time.Second); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "binary" {
		t.Fatalf("content = %q, err = %v", data, err)
	}
	if _, err := os.Stat(dest + ".download"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	if err := downloadURLToFile(dest+"2", srv.URL+"/missing", time.Second); err == nil {
		t.Fatal("expected HTTP status error")
	}
}

// TestInstallOrFixOutputDirCreatesDirectory ensures output dir fix creates missing directories.
func TestInstallOrFixOutputDirCreatesDirectory(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "nested", "transcripts")

	settings := domain.Settings{
		OutputDir: outputDir,
		Language:  "auto",
	}
	fixed, changed, err := installOrFixOutputDir(settings)
	if err != nil {
		t.Fatalf("fix output dir: %v", err)
	}
	if changed {
		t.Fatal("expected settings to remain unchanged")
	}
	if fixed.OutputDir != outputDir {
		t.Fatalf("OutputDir = %s, want %s", fixed.OutputDir, outputDir)
	}
	if _, err := os.Stat(outputDir); err != nil {
		t.Fatalf("stat output dir: %v", err)
	}
}

// TestInstallOrFixDiagnosticRejectsUnknownItem checks unsupported IDs error out.
func TestInstallOrFixDiagnosticRejectsUnknownItem(t *testing.T) {
	app := &App{Store: &fakeStore{settings: domain.Settings{Workers: 1}}}
	if _, err := app.InstallOrFixDiagnostic("api_key"); err == nil {
		t.Fatal("expected unsupported item error")
	}
}
