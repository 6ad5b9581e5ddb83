package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fanlink/fanlink-go/pkg/persistence"
)

const (
	firmwareFile    = "firmware.bin"
	downloadTimeout = 2 * time.Minute
)

var errNoUpdateURL = errors.New("update requested but update.url is not configured")

// checkUpdate runs a pending firmware download before the device starts
// serving.
func (d *Device) checkUpdate(ctx context.Context) {
	ran, err := persistence.RunPendingUpdate(ctx, d.store, persistence.UpdaterFunc(d.fetchFirmware))
	switch {
	case !ran && err != nil:
		d.logger.Warn("update check failed", "error", err)
	case ran && err != nil:
		d.logger.Error("firmware update failed", "error", err)
	case ran:
		d.logger.Info("firmware staged", "path", d.firmwarePath())
	}
}

func (d *Device) firmwarePath() string {
	return filepath.Join(filepath.Dir(d.store.Path()), firmwareFile)
}

// fetchFirmware downloads the image named by rec next to the state file.
// Installing it is up to the host platform.
func (d *Device) fetchFirmware(ctx context.Context, rec persistence.UpdateRecord) error {
	if d.cfg.Update.URL == "" {
		return errNoUpdateURL
	}
	u, err := rec.URL(d.cfg.Update.URL)
	if err != nil {
		return fmt.Errorf("update url: %w", err)
	}
	d.logger.Info("downloading firmware", "url", d.cfg.Update.URL)

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: unexpected status %s", resp.Status)
	}

	dest := d.firmwarePath()
	tmp := dest + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
