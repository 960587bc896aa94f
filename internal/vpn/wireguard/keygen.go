package wireguard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ErrExternalTool — утилита генерации ключей недоступна или упала.
var ErrExternalTool = errors.New("external key tool failed")

// ExternalToolError описывает, какая команда упала и что она сказала.
type ExternalToolError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExternalToolError) Unwrap() []error { return []error{ErrExternalTool, e.Err} }

// KeyPair — пара ключей WireGuard в base64.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// KeyGenerator выдаёт новую пару ключей.
type KeyGenerator interface {
	GenerateKeyPair(ctx context.Context) (KeyPair, error)
}

// NativeKeyGenerator — Curve25519 без внешних утилит.
type NativeKeyGenerator struct{}

func (NativeKeyGenerator) GenerateKeyPair(context.Context) (KeyPair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate private key: %w", err)
	}
	return KeyPair{PrivateKey: priv.String(), PublicKey: priv.PublicKey().String()}, nil
}

// CommandKeyGenerator вызывает `wg genkey` и `wg pubkey`.
type CommandKeyGenerator struct {
	Binary string // по умолчанию "wg"
}

func (g CommandKeyGenerator) GenerateKeyPair(ctx context.Context) (KeyPair, error) {
	priv, err := g.run(ctx, nil, "genkey")
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := g.run(ctx, strings.NewReader(priv+"\n"), "pubkey")
	if err != nil {
		return KeyPair{}, err
	}

	// вывод утилиты проверяем: мусор в конфиге хуже явной ошибки
	pk, err := wgtypes.ParseKey(priv)
	if err != nil {
		return KeyPair{}, &ExternalToolError{Command: g.binary() + " genkey", Err: fmt.Errorf("bad private key: %w", err)}
	}
	if _, err := wgtypes.ParseKey(pub); err != nil {
		return KeyPair{}, &ExternalToolError{Command: g.binary() + " pubkey", Err: fmt.Errorf("bad public key: %w", err)}
	}
	if pk.PublicKey().String() != pub {
		return KeyPair{}, &ExternalToolError{Command: g.binary() + " pubkey", Err: errors.New("public key does not match private key")}
	}
	return KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

func (g CommandKeyGenerator) binary() string {
	if g.Binary == "" {
		return "wg"
	}
	return g.Binary
}

func (g CommandKeyGenerator) run(ctx context.Context, stdin *strings.Reader, arg string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary(), arg)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &ExternalToolError{
			Command: g.binary() + " " + arg,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// NewKeyGenerator выбирает реализацию: "wg", "native" или "auto"
// (wg, если найден в PATH, иначе native).
func NewKeyGenerator(mode, binary string) (KeyGenerator, error) {
	switch mode {
	case "native":
		return NativeKeyGenerator{}, nil
	case "wg":
		return CommandKeyGenerator{Binary: binary}, nil
	case "auto", "":
		if binary == "" {
			binary = "wg"
		}
		if _, err := exec.LookPath(binary); err == nil {
			return CommandKeyGenerator{Binary: binary}, nil
		}
		return NativeKeyGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown keygen mode %q", mode)
	}
}
