package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService     = "org.bluez"
	adapterInterface = "org.bluez.Adapter1"
	deviceInterface  = "org.bluez.Device1"

	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	serviceUnknown    = "org.freedesktop.DBus.Error.ServiceUnknown"

	defaultScanTimeout  = 10 * time.Second
	defaultScanInterval = 250 * time.Millisecond
)

// errNoBus marks a system bus that could not be reached.
var errNoBus = errors.New("system bus unavailable")

// objects is the GetManagedObjects reply: path -> interface -> properties.
type objects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// bus is the part of the BlueZ D-Bus API the pairer uses.
type bus interface {
	managedObjects(ctx context.Context) (objects, error)
	call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) error
	// watchDevice streams Device1 property changes for path until stop is called.
	watchDevice(ctx context.Context, path dbus.ObjectPath) (changes <-chan map[string]dbus.Variant, stop func(), err error)
	close() error
}

// BusPairer talks to BlueZ on the system D-Bus. Discovery is narrowed to
// the requested service UUIDs by the adapter itself.
type BusPairer struct {
	// ScanInterval spaces device list reads while discovery runs.
	ScanInterval time.Duration

	dial func() (bus, error)
}

// DefaultPairer uses BlueZ over D-Bus and falls back to bluetoothctl when
// the system bus cannot be reached.
func DefaultPairer() Pairer {
	return fallbackPairer{primary: BusPairer{}, fallback: CLIPairer{}}
}

func (p BusPairer) open() (bus, error) {
	dial := p.dial
	if dial == nil {
		dial = dialSystemBus
	}
	b, err := dial()
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrUnsupported, errNoBus, err)
	}
	return b, nil
}

// RequestDevice runs discovery on the first adapter and returns the first
// matching device seen within ScanTimeout.
func (p BusPairer) RequestDevice(ctx context.Context, filters Filters) (Device, error) {
	b, err := p.open()
	if err != nil {
		return Device{}, err
	}
	defer b.close()

	objs, err := b.managedObjects(ctx)
	if err != nil {
		return Device{}, classify(ctx, err)
	}
	adapter, ok := firstAdapter(objs)
	if !ok {
		return Device{}, fmt.Errorf("%w: no bluetooth adapter", ErrUnsupported)
	}

	services := filters.Services
	if len(services) == 0 {
		services = DefaultServices
	}
	filter := map[string]dbus.Variant{
		"UUIDs":     dbus.MakeVariant(services),
		"Transport": dbus.MakeVariant("le"),
	}
	if err := b.call(ctx, adapter, adapterInterface+".SetDiscoveryFilter", filter); err != nil {
		return Device{}, classify(ctx, err)
	}
	if err := b.call(ctx, adapter, adapterInterface+".StartDiscovery"); err != nil {
		return Device{}, classify(ctx, err)
	}
	defer func() {
		_ = b.call(context.WithoutCancel(ctx), adapter, adapterInterface+".StopDiscovery")
	}()

	scan := filters.ScanTimeout
	if scan <= 0 {
		scan = defaultScanTimeout
	}
	interval := p.ScanInterval
	if interval <= 0 {
		interval = defaultScanInterval
	}
	deadline := time.NewTimer(scan)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if device, ok := matchDevice(objs, adapter, filters.Name, services); ok {
			return device, nil
		}
		select {
		case <-ctx.Done():
			return Device{}, classify(ctx, ctx.Err())
		case <-deadline.C:
			return Device{}, ErrNotFound
		case <-ticker.C:
		}
		if objs, err = b.managedObjects(ctx); err != nil {
			return Device{}, classify(ctx, err)
		}
	}
}

// Connect asks BlueZ to connect every profile of device.
func (p BusPairer) Connect(ctx context.Context, device Device) error {
	b, err := p.open()
	if err != nil {
		return err
	}
	defer b.close()

	path, err := devicePath(ctx, b, device.Address)
	if err != nil {
		return err
	}
	if err := b.call(ctx, path, deviceInterface+".Connect"); err != nil {
		if ctx.Err() != nil {
			return classify(ctx, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrConnectFailed, device.Label(), err)
	}
	return nil
}

// Watch follows the device's Connected property and calls onDisconnect once
// when it drops or the device goes away.
func (p BusPairer) Watch(ctx context.Context, device Device, onDisconnect func()) error {
	b, err := p.open()
	if err != nil {
		return err
	}
	defer b.close()

	disconnected := func() error {
		if onDisconnect != nil {
			onDisconnect()
		}
		return nil
	}

	path, err := devicePath(ctx, b, device.Address)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return disconnected()
	}
	changes, stop, err := b.watchDevice(ctx, path)
	if err != nil {
		return classify(ctx, err)
	}
	defer stop()

	objs, err := b.managedObjects(ctx)
	if err != nil {
		return classify(ctx, err)
	}
	if current, ok := objs[path][deviceInterface]; !ok || !boolProp(current, "Connected") {
		return disconnected()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case changed, ok := <-changes:
			if !ok {
				return disconnected()
			}
			if v, set := changed["Connected"]; set {
				if connected, _ := v.Value().(bool); !connected {
					return disconnected()
				}
			}
		}
	}
}

// firstAdapter returns the adapter with the lowest object path.
func firstAdapter(objs objects) (dbus.ObjectPath, bool) {
	var adapters []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterInterface]; ok {
			adapters = append(adapters, path)
		}
	}
	if len(adapters) == 0 {
		return "", false
	}
	slices.Sort(adapters)
	return adapters[0], true
}

// matchDevice returns the first device under adapter, in path order, that
// advertises any wanted service and whose name contains name.
func matchDevice(objs objects, adapter dbus.ObjectPath, name string, services []string) (Device, bool) {
	var paths []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[deviceInterface]; ok && strings.HasPrefix(string(path), string(adapter)+"/") {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)

	for _, path := range paths {
		device := deviceFromProps(objs[path][deviceInterface])
		if name != "" && !strings.Contains(strings.ToLower(device.Name), strings.ToLower(name)) {
			continue
		}
		if advertisesAny(device.Services, services) {
			return device, true
		}
	}
	return Device{}, false
}

func deviceFromProps(props map[string]dbus.Variant) Device {
	device := Device{
		Address:   strings.ToUpper(stringProp(props, "Address")),
		Name:      stringProp(props, "Name"),
		Connected: boolProp(props, "Connected"),
	}
	if device.Name == "" {
		device.Name = stringProp(props, "Alias")
	}
	if v, ok := props["UUIDs"]; ok {
		if uuids, ok := v.Value().([]string); ok {
			for _, uuid := range uuids {
				device.Services = append(device.Services, strings.ToLower(uuid))
			}
		}
	}
	return device
}

func devicePath(ctx context.Context, b bus, address string) (dbus.ObjectPath, error) {
	objs, err := b.managedObjects(ctx)
	if err != nil {
		return "", classify(ctx, err)
	}
	for path, ifaces := range objs {
		props, ok := ifaces[deviceInterface]
		if ok && strings.EqualFold(stringProp(props, "Address"), address) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, address)
}

func stringProp(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

// systemBus adapts a system bus connection to bus.
type systemBus struct {
	conn *dbus.Conn
}

func dialSystemBus() (bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}
	return systemBus{conn: conn}, nil
}

func (b systemBus) managedObjects(ctx context.Context) (objects, error) {
	var out objects
	err := b.conn.Object(bluezService, "/").
		CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).
		Store(&out)
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == serviceUnknown {
		return nil, fmt.Errorf("%w: bluetoothd is not running", ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("list bluez objects: %w", err)
	}
	return out, nil
}

func (b systemBus) call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) error {
	return b.conn.Object(bluezService, path).CallWithContext(ctx, method, 0, args...).Err
}

func (b systemBus) watchDevice(ctx context.Context, path dbus.ObjectPath) (<-chan map[string]dbus.Variant, func(), error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := b.conn.AddMatchSignalContext(ctx, match...); err != nil {
		return nil, nil, fmt.Errorf("subscribe to %s: %w", path, err)
	}

	signals := make(chan *dbus.Signal, 16)
	b.conn.Signal(signals)
	out := make(chan map[string]dbus.Variant)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for {
			var sig *dbus.Signal
			select {
			case <-done:
				return
			case s, ok := <-signals:
				if !ok {
					return
				}
				sig = s
			}
			if sig.Path != path || sig.Name != propertiesChanged || len(sig.Body) < 2 {
				continue
			}
			if iface, _ := sig.Body[0].(string); iface != deviceInterface {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			select {
			case out <- changed:
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		b.conn.RemoveSignal(signals)
		_ = b.conn.RemoveMatchSignalContext(context.Background(), match...)
	}
	return out, stop, nil
}

func (b systemBus) close() error {
	return b.conn.Close()
}

// fallbackPairer uses fallback only when primary cannot reach its bus.
type fallbackPairer struct {
	primary  Pairer
	fallback Pairer
}

func (p fallbackPairer) RequestDevice(ctx context.Context, filters Filters) (Device, error) {
	device, err := p.primary.RequestDevice(ctx, filters)
	if errors.Is(err, errNoBus) {
		return p.fallback.RequestDevice(ctx, filters)
	}
	return device, err
}

func (p fallbackPairer) Connect(ctx context.Context, device Device) error {
	err := p.primary.Connect(ctx, device)
	if errors.Is(err, errNoBus) {
		return p.fallback.Connect(ctx, device)
	}
	return err
}

func (p fallbackPairer) Watch(ctx context.Context, device Device, onDisconnect func()) error {
	err := p.primary.Watch(ctx, device, onDisconnect)
	if errors.Is(err, errNoBus) {
		return p.fallback.Watch(ctx, device, onDisconnect)
	}
	return err
}
