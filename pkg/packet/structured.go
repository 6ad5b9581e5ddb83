package packet

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fanlink/fanlink-go/pkg/control"
)

type keyRole uint8

const (
	roleNone keyRole = iota
	roleIgnored
	roleAuthKey
	roleWifi
	roleSSID
	rolePassword
	roleControl
)

// structuredKeys maps lower-case key names to their role.
var structuredKeys = map[string]keyRole{
	"authkey":  roleAuthKey,
	"wifi":     roleWifi,
	"ssid":     roleSSID,
	"pass":     rolePassword,
	"password": rolePassword,
	"pwd":      rolePassword,
	"speed":    roleControl,
	"angle":    roleControl,
	"light":    roleControl,
	"power":    roleControl,
	"device":   roleIgnored,
	"id":       roleIgnored,
	"ts":       roleIgnored,
	"time":     roleIgnored,
	"epoch":    roleIgnored,
}

// ParseStructured decodes text as a flow document and extracts known keys.
// ok is false when text does not start with '{' or '[', does not tokenize,
// or holds no known key; the caller then falls back to ParseFallback.
func ParseStructured(text string) (Intent, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return Intent{}, false
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(trimmed), &root); err != nil {
		return Intent{}, false
	}

	var f fields
	walkNode(&root, &f)
	if f.recognized == 0 {
		return Intent{}, false
	}
	return f.intent(), true
}

func walkNode(n *yaml.Node, f *fields) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			walkNode(c, f)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				// {{Fan1},{"Speed": 100}} decodes as mappings used as keys.
				walkNode(key, f)
				walkNode(value, f)
				continue
			}
			visitPair(strings.ToLower(key.Value), value, f)
		}
	}
	// Aliases are not followed.
}

func visitPair(key string, value *yaml.Node, f *fields) {
	role := structuredKeys[key]

	if value.Kind != yaml.ScalarNode {
		if role == roleWifi {
			f.wifi = true
			f.recognized++
		}
		walkNode(value, f)
		return
	}

	raw := value.Value
	switch role {
	case roleNone:
		return
	case roleIgnored:
	case roleAuthKey:
		if f.hasAuthKey {
			return
		}
		f.authKey = raw
		f.hasAuthKey = true
	case roleWifi:
		if !f.wifi || f.wifiValue == "" {
			f.wifiValue = raw
		}
		f.wifi = true
	case roleSSID:
		if f.hasSSID {
			return
		}
		f.ssid = raw
		f.hasSSID = true
		f.wifi = true
	case rolePassword:
		if f.password == "" {
			f.password = raw
		}
	case roleControl:
		field, err := control.ParseField(key)
		if err != nil {
			return
		}
		v, ok := parseInt(raw)
		if !ok {
			return
		}
		f.setControl(field, v)
	}
	f.recognized++
}
