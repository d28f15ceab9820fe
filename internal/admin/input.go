package admin

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

// promptPassword reads a password from the terminal without echo.
func promptPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetNewPassword asks for a password twice and returns it if both entries
// match. The raw terminal buffers are zeroed before returning.
func GetNewPassword(w io.Writer) (string, error) {
	first, err := promptPassword(w, "Enter breakglass password: ")
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(first)

	second, err := promptPassword(w, "Repeat password: ")
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(second)

	if string(first) != string(second) {
		return "", errPasswordMismatch
	}
	return string(first), nil
}
