package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fanlink/fanlink-go/cmd/fanlink-device/interactive"
	"github.com/fanlink/fanlink-go/pkg/cert"
	"github.com/fanlink/fanlink-go/pkg/config"
	"github.com/fanlink/fanlink-go/pkg/control"
	"github.com/fanlink/fanlink-go/pkg/discovery"
	"github.com/fanlink/fanlink-go/pkg/dispatch"
	"github.com/fanlink/fanlink-go/pkg/gatt"
	"github.com/fanlink/fanlink-go/pkg/log"
	"github.com/fanlink/fanlink-go/pkg/persistence"
	"github.com/fanlink/fanlink-go/pkg/provision"
	"github.com/fanlink/fanlink-go/pkg/security"
	"github.com/fanlink/fanlink-go/pkg/telemetry"
	"github.com/fanlink/fanlink-go/pkg/transport"
	"github.com/fanlink/fanlink-go/pkg/version"
)

// Device wires the command channel components together.
type Device struct {
	cfg    config.Config
	logger *slog.Logger

	keys  *security.KeyStore
	table *security.Table
	state *control.State
	queue *provision.Queue
	store *persistence.StateStore
	gw    *gatt.Gateway

	server      *transport.Server
	tlsConf     *tls.Config
	fingerprint string
	httpServer  *http.Server
	wsListener  net.Listener
	advertiser  *discovery.MDNSAdvertiser
	publisher   *telemetry.NATSPublisher

	capture     log.Logger
	captureFile *log.FileLogger

	// dirty holds at most one pending request to persist the controls.
	dirty chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDevice builds a device from cfg. Nothing is started.
func NewDevice(cfg config.Config, logger *slog.Logger) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	profile, err := version.LoadCurrentProfile()
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if res := profile.Validate(gatt.Describe()); !res.Valid {
		return nil, fmt.Errorf("characteristic table does not match profile %s: %v", profile.Version, res.Errors)
	}

	d := &Device{cfg: cfg, logger: logger, dirty: make(chan struct{}, 1)}

	key, err := cfg.Auth.HMACKey()
	if err != nil {
		return nil, err
	}
	d.keys = security.NewKeyStore(key)

	if d.table, err = security.NewTable(d.keys, cfg.Auth.TableConfig()); err != nil {
		return nil, err
	}
	d.table.SetLogger(logger.With("component", "auth"))

	d.state = control.NewState()
	d.state.SetLogger(logger.With("component", "control"))

	if d.queue, err = provision.NewQueue(cfg.Provisioning.QueueCapacity, cfg.Provisioning.SendTimeout.D()); err != nil {
		return nil, err
	}
	d.store = persistence.NewStateStore(cfg.Device.StateFile)

	if err := d.openCapture(); err != nil {
		return nil, err
	}

	disp, err := dispatch.New(dispatch.Device{
		Auth:       d.table,
		State:      d.state,
		Handoff:    d.queue,
		Passphrase: []byte(cfg.Auth.Passphrase),
	},
		dispatch.WithLogger(logger.With("component", "dispatch")),
		dispatch.WithCapture(d.capture),
		dispatch.WithDeviceID(cfg.Device.ID),
	)
	if err != nil {
		d.closeCapture()
		return nil, err
	}
	d.gw = gatt.New(disp,
		gatt.WithLogger(logger.With("component", "gatt")),
		gatt.WithCapture(d.capture),
	)

	if err := d.setupTLS(); err != nil {
		d.closeCapture()
		return nil, err
	}

	d.server = transport.NewServer(d.gw, transport.ServerConfig{
		Address:        cfg.Transport.Listen,
		TLS:            d.tlsConf,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
		MaxConnections: cfg.Transport.MaxConnections,
		KeepAlive:      cfg.Transport.KeepAlive(),
		Logger:         logger.With("component", "transport"),
		Capture:        d.capture,
	})
	return d, nil
}

// setupTLS loads the configured key pair, or the self-signed identity,
// generating it on first boot.
func (d *Device) setupTLS() error {
	t := d.cfg.Transport
	switch {
	case t.TLSCert != "":
		conf, err := transport.NewServerTLSConfig(transport.TLSConfig{CertFile: t.TLSCert, KeyFile: t.TLSKey})
		if err != nil {
			return err
		}
		d.tlsConf = conf
	case t.TLSSelfSigned:
		dir := t.IdentityDir(d.cfg.Device.StateFile)
		id, created, err := cert.LoadOrCreate(dir, d.cfg.Device.ID, time.Now())
		if err != nil {
			return fmt.Errorf("tls identity: %w", err)
		}
		d.tlsConf = transport.ServerTLSConfig(id.TLSCertificate())
		d.fingerprint = id.Fingerprint()
		d.logger.Info("tls identity loaded", "dir", dir, "created", created,
			"fingerprint", d.fingerprint, "expires", id.Certificate.NotAfter.Format(time.DateOnly))
	}
	return nil
}

// TLSFingerprint returns the SHA-256 fingerprint of the self-signed identity,
// or "" when it is not in use.
func (d *Device) TLSFingerprint() string {
	return d.fingerprint
}

func (d *Device) openCapture() error {
	var loggers []log.Logger
	if d.cfg.Capture.File != "" {
		fl, err := log.NewFileLogger(d.cfg.Capture.File)
		if err != nil {
			return fmt.Errorf("open capture file: %w", err)
		}
		d.captureFile = fl
		loggers = append(loggers, fl)
	}
	if d.cfg.Capture.Slog {
		loggers = append(loggers, log.NewSlogAdapter(d.logger.With("component", "capture")))
	}

	switch len(loggers) {
	case 0:
		d.capture = log.NoopLogger{}
	case 1:
		d.capture = loggers[0]
	default:
		d.capture = log.NewMultiLogger(loggers...)
	}
	return nil
}

func (d *Device) closeCapture() {
	if d.captureFile == nil {
		return
	}
	if n := d.captureFile.Dropped(); n > 0 {
		d.logger.Warn("capture events dropped", "count", n)
	}
	d.captureFile.Close()
}

// Start restores persisted state, runs the boot update check and starts
// serving.
func (d *Device) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.restore()
	d.checkUpdate(ctx)

	d.state.AddNotifier(control.NotifierFunc(d.persistControls))
	if d.cfg.Telemetry.NATSURL != "" {
		pub, err := telemetry.Connect(d.cfg.Telemetry.NATSURL, telemetry.Config{
			Prefix:   d.cfg.Telemetry.SubjectPrefix,
			DeviceID: d.cfg.Device.ID,
			Logger:   d.logger.With("component", "telemetry"),
		})
		if err != nil {
			// The device stays usable without telemetry.
			d.logger.Warn("telemetry disabled", "error", err)
		} else {
			d.publisher = pub
			d.state.AddNotifier(pub)
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.persistLoop(ctx)
	}()

	worker := provision.NewWorker(d.queue, provision.ProvisionerFunc(d.applyCredentials), d.logger.With("component", "provision"))
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		worker.Run(ctx)
	}()

	if err := d.server.Start(ctx); err != nil {
		d.cancel()
		return err
	}
	if a := d.server.Addr(); a != nil {
		d.logger.Info("listening", "address", a.String(), "tls", d.tlsConf != nil)
	}

	if err := d.startWebSocket(); err != nil {
		d.Stop()
		return err
	}

	if d.cfg.Discovery.Enabled {
		d.advertise(ctx)
	}
	return nil
}

func (d *Device) startWebSocket() error {
	if d.cfg.Transport.WebSocketListen == "" {
		return nil
	}
	ln, err := net.Listen("tcp", d.cfg.Transport.WebSocketListen)
	if err != nil {
		return fmt.Errorf("websocket listen: %w", err)
	}
	if d.tlsConf != nil {
		ln = tls.NewListener(ln, d.tlsConf)
	}
	d.wsListener = ln

	mux := http.NewServeMux()
	mux.Handle(d.cfg.Transport.WebSocketPath, d.server.Handler())
	d.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("websocket server failed", "error", err)
		}
	}()
	d.logger.Info("websocket listening", "address", ln.Addr().String(), "path", d.cfg.Transport.WebSocketPath)
	return nil
}

func (d *Device) advertise(ctx context.Context) {
	addr, ok := d.server.Addr().(*net.TCPAddr)
	if !ok {
		d.logger.Info("mDNS disabled without a TCP listener")
		return
	}

	info := discovery.Info{
		DeviceID:    d.cfg.Device.ID,
		Version:     version.Current,
		AuthMethods: []string{discovery.AuthHMAC},
		Name:        d.cfg.Device.Name,
		Port:        uint16(addr.Port),
	}
	if d.cfg.Auth.Passphrase != "" {
		info.AuthMethods = append(info.AuthMethods, discovery.AuthPassphrase)
	}
	if d.wsListener != nil {
		info.WebSocketPath = d.cfg.Transport.WebSocketPath
	}

	d.advertiser = discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: d.cfg.Discovery.Interface,
		Logger:    d.logger.With("component", "discovery"),
	})
	if err := d.advertiser.Advertise(ctx, info); err != nil {
		d.logger.Warn("mDNS advertising failed", "error", err)
	}
}

// Stop shuts everything down and waits for background goroutines.
func (d *Device) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = d.httpServer.Shutdown(ctx)
		cancel()
	}
	d.server.Stop()
	if d.advertiser != nil {
		d.advertiser.Stop()
	}
	if d.publisher != nil {
		d.publisher.Close()
	}
	d.wg.Wait()
	d.closeCapture()
}

// restore replays the persisted control record into the state.
func (d *Device) restore() {
	saved, err := d.store.Load()
	if err != nil {
		d.logger.Warn("state file unreadable, starting fresh", "path", d.store.Path(), "error", err)
		return
	}
	if saved == nil {
		return
	}
	if saved.Controls != nil {
		for _, f := range control.Fields {
			if err := d.state.Apply(f, int64(saved.Controls.Get(f))); err != nil {
				d.logger.Warn("restore control failed", "field", f.String(), "error", err)
			}
		}
	}
	if saved.Credentials != nil {
		d.logger.Info("stored credentials found", "ssid", saved.Credentials.SSID, "stored_at", saved.Credentials.StoredAt)
	}
}

// persistControls is a control notifier. It only marks the controls dirty;
// persistLoop does the write.
func (d *Device) persistControls(control.Field, uint32) {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

// persistLoop saves the reported controls whenever they are dirty, and once
// more on shutdown if a change is still pending.
func (d *Device) persistLoop(ctx context.Context) {
	save := func() {
		if err := d.store.SaveControls(d.state.Reported()); err != nil {
			d.logger.Warn("persist controls failed", "error", err)
		}
	}
	for {
		select {
		case <-d.dirty:
			save()
		case <-ctx.Done():
			select {
			case <-d.dirty:
				save()
			default:
			}
			return
		}
	}
}

// applyCredentials stores provisioned credentials. Joining the network is
// left to the host platform, which watches the state file.
func (d *Device) applyCredentials(_ context.Context, rec provision.Record) error {
	if err := d.store.SaveCredentials(rec); err != nil {
		return err
	}
	d.logger.Info("credentials stored", "ssid", rec.SSID, "state_file", d.store.Path())
	return nil
}

// TCPAddr returns the TCP listen address, or nil.
func (d *Device) TCPAddr() net.Addr {
	return d.server.Addr()
}

// WebSocketURL returns the WebSocket endpoint URL, or "".
func (d *Device) WebSocketURL() string {
	if d.wsListener == nil {
		return ""
	}
	scheme := "ws"
	if d.tlsConf != nil {
		scheme = "wss"
	}
	return scheme + "://" + d.wsListener.Addr().String() + d.cfg.Transport.WebSocketPath
}

// Controls returns the console view of the device.
func (d *Device) Controls() interactive.Controls {
	return deviceControls{d}
}

type deviceControls struct{ d *Device }

func (c deviceControls) Status() interactive.Status {
	st := interactive.Status{
		DeviceID:     c.d.cfg.Device.ID,
		Desired:      c.d.state.Desired(),
		Reported:     c.d.state.Reported(),
		Connections:  c.d.server.ConnectionCount(),
		AuthSlots:    c.d.table.Len(),
		AuthCapacity: c.d.table.Capacity(),
		QueueLen:     c.d.queue.Len(),
		WebSocket:    c.d.WebSocketURL(),
	}
	if a := c.d.TCPAddr(); a != nil {
		st.Listen = a.String()
	}
	return st
}

func (c deviceControls) Set(f control.Field, v int64) error {
	return c.d.state.Apply(f, v)
}

func (c deviceControls) Credentials() (provision.Record, bool, error) {
	return c.d.store.LoadCredentials()
}

func (c deviceControls) SetKey(key []byte) error {
	return c.d.keys.SetKey(key)
}

func (c deviceControls) RequestUpdate(token string) error {
	return persistence.RequestUpdate(c.d.store, token)
}
