package settings

import (
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

// FileReader loads INI-style `key = value` configuration into Settings.
// Unknown keys are reported back to the caller but do not stop parsing;
// everything unparsed keeps its default.
type FileReader struct {
	path string
}

func NewFileReader(path string) *FileReader {
	return &FileReader{path: path}
}

// Apply reads the config file and overlays recognized options onto s.
// The returned slice lists keys the parser did not recognize.
func (r *FileReader) Apply(s *Settings) ([]string, error) {
	file, err := ini.Load(r.path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", ErrConfig, r.path, err)
	}

	var unknown []string
	for _, key := range file.Section("").Keys() {
		if !applyOption(s, key.Name(), key.Value()) {
			unknown = append(unknown, key.Name())
		}
	}
	return unknown, nil
}

func applyOption(s *Settings, name, value string) bool {
	switch name {
	case "port":
		if port, err := strconv.Atoi(value); err == nil {
			s.Port = port
		}
	case "interface":
		s.InterfaceName = value
	case "router":
		if addr, err := netip.ParseAddr(value); err == nil && addr.Is4() {
			s.Router = addr
		}
	case "netmask":
		if mask, err := netip.ParseAddr(value); err == nil && mask.Is4() {
			s.Netmask = mask
		}
	case "mtu":
		if mtu, err := strconv.Atoi(value); err == nil {
			s.MTU = mtu
		}
	case "log":
		if value == "false" {
			s.LogFile = ""
		} else {
			s.LogFile = value
		}
	case "heartbeat":
		if secs, err := strconv.Atoi(value); err == nil {
			s.HeartbeatInterval = time.Duration(secs) * time.Second
		}
	case "max_clients":
		if n, err := strconv.Atoi(value); err == nil {
			s.MaxClients = n
		}
	case "protocol":
		if p, err := ParseProtocol(value); err == nil {
			s.Protocol = p
		}
	case "debug":
		s.Debug = isTrue(value)
	case "daemonize":
		s.Daemonize = isTrue(value)
	case "cacert":
		s.setCACert(value)
	case "capublickey":
		s.setCAPublicKey(value)
	case "caprivatekey":
		s.setCAPrivateKey(value)
	case "publickey":
		s.setIdentity(value)
	case "privatekey":
		s.setPrivateKey(value)
	default:
		return false
	}
	return true
}

func isTrue(value string) bool {
	return len(value) > 0 && value[0] == 't'
}
