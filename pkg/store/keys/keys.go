package keys

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// notation:
	// conv = conversation metadata
	// c    = conversation messages
	// m    = message
	// a    = agent
	// d    = device
	// act  = action
	// idx  = index
	// segments are separated by ":"

	ConversationKey = "conv:%s"            // conv:<conv_id>
	MessageKey      = "c:%s:m:%s"          // c:<conv_id>:m:<seq>
	MessagePrefix   = "c:%s:m:"            // c:<conv_id>:m:
	CorrelationKey  = "idx:c:%s:corr:%s"   // idx:c:<conv_id>:corr:<correlation_id> -> message key
	CorrelationPfx  = "idx:c:%s:corr:"     // idx:c:<conv_id>:corr:
	DeviceConvKey   = "idx:a:%s:d:%s:c:%s" // idx:a:<agent>:d:<device>:c:<created_ts> -> conv id
	DeviceConvPfx   = "idx:a:%s:d:%s:c:"   // idx:a:<agent>:d:<device>:c:
	ActionKey       = "a:%s:act:%s"        // a:<agent>:act:<action_id>
	ActionPrefix    = "a:%s:act:"          // a:<agent>:act:

	ConversationPrefix = "conv:"

	// padding widths, fixed for lexicographic ordering
	TSPadWidth  = 20
	SeqPadWidth = 12
)

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9._-]{1,256}$`)

var ErrInvalidID = errors.New("invalid id")

// ValidateID rejects identifiers that would break key shapes.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s id empty", ErrInvalidID, kind)
	}
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("%w: %s %q", ErrInvalidID, kind, id)
	}
	return nil
}

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

func PadSeq(seq uint64) string {
	return fmt.Sprintf("%0*d", SeqPadWidth, seq)
}

func GenConversationKey(convID string) string {
	return fmt.Sprintf(ConversationKey, convID)
}

func GenMessageKey(convID string, seq uint64) string {
	return fmt.Sprintf(MessageKey, convID, PadSeq(seq))
}

func GenMessagePrefix(convID string) string {
	return fmt.Sprintf(MessagePrefix, convID)
}

func GenCorrelationKey(convID, correlationID string) string {
	return fmt.Sprintf(CorrelationKey, convID, correlationID)
}

func GenCorrelationPrefix(convID string) string {
	return fmt.Sprintf(CorrelationPfx, convID)
}

func GenDeviceConvKey(agentID, deviceID string, createdTS int64) string {
	return fmt.Sprintf(DeviceConvKey, agentID, deviceID, PadTS(createdTS))
}

func GenDeviceConvPrefix(agentID, deviceID string) string {
	return fmt.Sprintf(DeviceConvPfx, agentID, deviceID)
}

func GenActionKey(agentID, actionID string) string {
	return fmt.Sprintf(ActionKey, agentID, actionID)
}

func GenActionPrefix(agentID string) string {
	return fmt.Sprintf(ActionPrefix, agentID)
}

// ParseMessageKey splits c:<conv>:m:<seq>.
func ParseMessageKey(key string) (convID string, seq uint64, err error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "c" || parts[2] != "m" {
		return "", 0, fmt.Errorf("invalid message key: %q", key)
	}
	seq, err = strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid message key seq: %q", key)
	}
	return parts[1], seq, nil
}

// ParseConversationKey returns the id in conv:<conv_id>.
func ParseConversationKey(key string) (string, error) {
	id, ok := strings.CutPrefix(key, ConversationPrefix)
	if !ok || id == "" || strings.Contains(id, ":") {
		return "", fmt.Errorf("invalid conversation key: %q", key)
	}
	return id, nil
}

// PrefixEnd returns the smallest key greater than every key with prefix.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
