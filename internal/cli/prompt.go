package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptConfirm asks a yes/no question and reads the answer from in.
// Empty input means no.
func promptConfirm(in io.Reader, out io.Writer, question string) (bool, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [y/N]: ", question)

		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(input)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		default:
			fmt.Fprintln(out, "Invalid choice, please answer y or n.")
			if err != nil {
				return false, err
			}
		}
	}
}
