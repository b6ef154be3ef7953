package dispatch

import (
	"fmt"

	"obvcore/internal/domain"
)

// resolve turns a selector into concrete targets. An empty result is not an
// error here; Wrap reports it as ErrNoDestinationResolvable.
func (d *Dispatcher) resolve(tx domain.Tx, owned domain.Identity, local domain.DeviceID, sel Selector) ([]target, error) {
	switch s := sel.(type) {
	case PointToPoint:
		key := domain.ChannelKey{Owned: owned, LocalDevice: local, RemoteIdentity: s.Identity, RemoteDevice: s.Device}
		ch, ok, err := d.registry.Get(tx, key)
		if err != nil {
			return nil, err
		}
		if !ok || (!ch.Confirmed() && !s.AllowUnconfirmed) {
			return nil, nil
		}
		return []target{{recipient: key.Remote(), variant: domain.VariantOblivious}}, nil

	case AllConfirmedChannelsWithContact:
		return d.confirmedWith(tx, owned, local, s.Contact, false)

	case AllConfirmedChannelsWithOwnOtherDevices:
		return d.confirmedWith(tx, owned, local, owned, false)

	case Broadcast:
		var out []target
		seen := make(map[domain.Identity]bool, len(s.Identities))
		for _, id := range s.Identities {
			if seen[id] {
				continue
			}
			seen[id] = true
			ts, err := d.confirmedWith(tx, owned, local, id, true)
			if err != nil {
				return nil, err
			}
			out = append(out, ts...)
		}
		return out, nil

	case Asymmetric:
		devices := s.Devices
		if len(devices) == 0 {
			var err error
			devices, err = d.directory.CurrentDeviceIDs(tx, owned, s.Identity)
			if err != nil {
				return nil, err
			}
		}
		out := make([]target, 0, len(devices))
		for _, dev := range devices {
			if s.Identity == owned && dev == local {
				continue
			}
			out = append(out, target{
				recipient: domain.Recipient{Identity: s.Identity, Device: dev},
				variant:   domain.VariantAsymmetric,
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported selector %T", sel)
	}
}

func (d *Dispatcher) confirmedWith(tx domain.Tx, owned domain.Identity, local domain.DeviceID, remote domain.Identity, broadcast bool) ([]target, error) {
	chs, err := d.registry.ChannelsWith(tx, owned, local, remote)
	if err != nil {
		return nil, err
	}
	var out []target
	for _, ch := range chs {
		if !ch.Confirmed() {
			continue
		}
		out = append(out, target{
			recipient: ch.Key.Remote(),
			variant:   domain.VariantOblivious,
			broadcast: broadcast,
		})
	}
	return out, nil
}
