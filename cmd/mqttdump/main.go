// Command mqttdump decodes MQTT packets and prints one line per packet.
//
// Usage:
//
//	mqttdump -hex '30 07 00 03 61 2f 62 68 69'
//	mqttdump -raw session.bin
//	mqttdump -capture frames.mpk
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bromq-dev/mqttwire/pkg/capture"
	"github.com/bromq-dev/mqttwire/pkg/packet"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mqttdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hexInput := fs.String("hex", "", "hex-encoded packets ('-' reads stdin); spaces are ignored")
	rawFile := fs.String("raw", "", "file of back-to-back packets ('-' reads stdin)")
	captureFile := fs.String("capture", "", "capture file written by mqttwire")
	strict := fs.Bool("strict", false, "validate UTF-8 strings and topics")
	allowNonMinimal := fs.Bool("allow-non-minimal-length", false, "accept over-long remaining length encodings")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	opts := packet.DecodeOptions{AllowNonMinimalLength: *allowNonMinimal}
	if *strict {
		opts.ValidateUTF8 = true
		opts.ValidateTopics = true
	}

	var err error
	switch {
	case *hexInput != "":
		err = dumpHex(*hexInput, stdin, stdout, opts)
	case *rawFile != "":
		err = withInput(*rawFile, stdin, func(r io.Reader) error {
			return dumpStream(r, stdout, opts)
		})
	case *captureFile != "":
		err = withInput(*captureFile, stdin, func(r io.Reader) error {
			return dumpCapture(r, stdout, opts)
		})
	default:
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "mqttdump: %v\n", err)
		return 1
	}
	return 0
}

func withInput(name string, stdin io.Reader, fn func(io.Reader) error) error {
	if name == "-" {
		return fn(stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func dumpHex(s string, stdin io.Reader, w io.Writer, opts packet.DecodeOptions) error {
	if s == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return err
		}
		s = string(data)
	}
	s = strings.Join(strings.Fields(s), "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("hex input: %w", err)
	}

	offset := 0
	for offset < len(data) {
		p, n, err := opts.Decode(data[offset:])
		if err != nil {
			return fmt.Errorf("offset %d: %w", offset, err)
		}
		fmt.Fprintln(w, Describe(p))
		offset += n
	}
	return nil
}

func dumpStream(r io.Reader, w io.Writer, opts packet.DecodeOptions) error {
	pr := packet.NewReader(r, packet.WithDecodeOptions(opts))
	for {
		p, err := pr.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, Describe(p))
	}
}

func dumpCapture(r io.Reader, w io.Writer, opts packet.DecodeOptions) error {
	return capture.Replay(r, opts, func(rec capture.Record, p packet.Packet, err error) error {
		prefix := fmt.Sprintf("%s %s %-8s", rec.Time.UTC().Format("2006-01-02T15:04:05.000Z"), rec.ConnID, rec.Direction)
		if err != nil {
			fmt.Fprintf(w, "%s ERROR %s: %v\n", prefix, packet.Kind(err), err)
			return nil
		}
		fmt.Fprintf(w, "%s %s\n", prefix, Describe(p))
		return nil
	})
}

// Describe renders a packet on one line.
func Describe(p packet.Packet) string {
	switch p := p.(type) {
	case *packet.Connect:
		s := fmt.Sprintf("CONNECT client_id=%q protocol=%s/%d clean_session=%t keep_alive=%d",
			p.ClientID, p.ProtocolName, p.ProtocolLevel, p.CleanSession, p.KeepAlive)
		if p.WillFlag {
			s += fmt.Sprintf(" will_topic=%q will_qos=%d will_retain=%t will_size=%d",
				p.WillTopic, p.WillQoS, p.WillRetain, len(p.WillMessage))
		}
		if p.UsernameFlag {
			s += fmt.Sprintf(" username=%q", p.Username)
		}
		if p.PasswordFlag {
			s += " password=<set>"
		}
		return s
	case *packet.Connack:
		return fmt.Sprintf("CONNACK session_present=%t return_code=%s", p.SessionPresent, p.ReturnCode)
	case *packet.Publish:
		s := fmt.Sprintf("PUBLISH topic=%q qos=%d retain=%t dup=%t", p.TopicName, p.QoS, p.Retain, p.Dup)
		if p.QoS > 0 {
			s += fmt.Sprintf(" packet_id=%d", p.PacketID)
		}
		return s + fmt.Sprintf(" payload=%q", p.Payload)
	case *packet.Puback:
		return fmt.Sprintf("PUBACK packet_id=%d", p.PacketID)
	case *packet.Pubrec:
		return fmt.Sprintf("PUBREC packet_id=%d", p.PacketID)
	case *packet.Pubrel:
		return fmt.Sprintf("PUBREL packet_id=%d", p.PacketID)
	case *packet.Pubcomp:
		return fmt.Sprintf("PUBCOMP packet_id=%d", p.PacketID)
	case *packet.Subscribe:
		parts := make([]string, len(p.Subscriptions))
		for i, sub := range p.Subscriptions {
			parts[i] = fmt.Sprintf("%s@%d", sub.TopicFilter, sub.QoS)
		}
		return fmt.Sprintf("SUBSCRIBE packet_id=%d filters=[%s]", p.PacketID, strings.Join(parts, " "))
	case *packet.Suback:
		parts := make([]string, len(p.ReturnCodes))
		for i, code := range p.ReturnCodes {
			parts[i] = code.String()
		}
		return fmt.Sprintf("SUBACK packet_id=%d return_codes=[%s]", p.PacketID, strings.Join(parts, " "))
	case *packet.Unsubscribe:
		return fmt.Sprintf("UNSUBSCRIBE packet_id=%d filters=[%s]", p.PacketID, strings.Join(p.TopicFilters, " "))
	case *packet.Unsuback:
		return fmt.Sprintf("UNSUBACK packet_id=%d", p.PacketID)
	default:
		return p.Type().String()
	}
}
