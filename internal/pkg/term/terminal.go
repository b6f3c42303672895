package term

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// Terminal обеспечивает интерактивную аутентификацию через терминал.
// Он реализует интерфейс auth.UserAuthenticator.
type Terminal struct {
	phone        string
	in           *bufio.Reader
	out          io.Writer
	stdinfd      int
	readPassword func(fd int) ([]byte, error)
}

var _ auth.UserAuthenticator = (*Terminal)(nil)

// Option настраивает Terminal.
type Option func(*Terminal)

// WithIO заменяет стандартные ввод и вывод.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(t *Terminal) {
		t.in = bufio.NewReader(in)
		t.out = out
	}
}

// NewTerminal создает новый экземпляр Terminal.
// Если номер телефона не задан, он запрашивается при входе.
func NewTerminal(phone string, opts ...Option) *Terminal {
	t := &Terminal{
		phone:        phone,
		in:           bufio.NewReader(os.Stdin),
		out:          os.Stdout,
		stdinfd:      int(os.Stdin.Fd()),
		readPassword: term.ReadPassword,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Phone возвращает номер телефона.
func (t *Terminal) Phone(_ context.Context) (string, error) {
	if t.phone != "" {
		return t.phone, nil
	}
	return t.prompt("Enter phone number: ")
}

// Password запрашивает пароль 2FA.
func (t *Terminal) Password(_ context.Context) (string, error) {
	fmt.Fprint(t.out, "Enter 2FA password: ")
	bytePwd, err := t.readPassword(t.stdinfd)
	if err != nil {
		return "", xerrors.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(t.out)
	return string(bytePwd), nil
}

// AcceptTermsOfService принимает Условия обслуживания.
func (t *Terminal) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	fmt.Fprintf(t.out, "Accepting Terms of Service: %s\n", tos.Text)
	return nil
}

// Code запрашивает код подтверждения.
func (t *Terminal) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return t.prompt("Enter code: ")
}

// SignUp не реализован: регистрация новых аккаунтов не поддерживается.
func (t *Terminal) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, xerrors.New("signup not implemented")
}

func (t *Terminal) prompt(text string) (string, error) {
	fmt.Fprint(t.out, text)
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", xerrors.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
