package logging

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mdp/qrterminal/v3"
)

// ANSI color codes.
const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	cyan    = "\033[36m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	magenta = "\033[35m"
	dim     = "\033[2m"
)

// Base Hyperion ASCII art.
var logoLines = [6]string{
	`  _   _                      _             `,
	` | | | |_   _ _ __   ___ _ __(_) ___  _ __  `,
	` | |_| | | | | '_ \ / _ \ '__| |/ _ \| '_ \ `,
	` |  _  | |_| | |_) |  __/ |  | | (_) | | | |`,
	` |_| |_|\__, | .__/ \___|_|  |_|\___/|_| |_|`,
	`        |___/|_|                            `,
}

// Mode-specific ASCII art (right-side, same height as logo).
var masterArt = [6]string{
	`  __  __          _            `,
	` |  \/  | __ _ ___| |_ ___ _ __ `,
	` | |\/| |/ _` + "`" + ` / __| __/ _ \ '__|`,
	` | |  | | (_| \__ \ ||  __/ |   `,
	` |_|  |_|\__,_|___/\__\___|_|   `,
	`                                 `,
}

var slaveArt = [6]string{
	`  ____  _               `,
	` / ___|| | __ ___   _____`,
	` \___ \| |/ _` + "`" + ` \ \ / / _ \`,
	`  ___) | | (_| |\ V /  __/`,
	` |____/|_|\__,_| \_/ \___|`,
	`                           `,
}

// PrintBanner prints the Hyperion ASCII art logo with mode-specific
// art appended to the right. Below the art it prints version and
// listen address. Colors are used only when stderr is a TTY.
func PrintBanner(mode, ver, addr string) {
	color := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	var modeArt *[6]string
	var modeColor string
	switch mode {
	case "master":
		modeArt = &masterArt
		modeColor = green
	default: // slave
		modeArt = &slaveArt
		modeColor = yellow
	}

	for i := 0; i < 6; i++ {
		if color {
			fmt.Fprintf(os.Stderr, "%s%s%s%s%s%s\n",
				bold+cyan, logoLines[i], reset,
				bold+modeColor, modeArt[i], reset)
		} else {
			fmt.Fprintf(os.Stderr, "%s%s\n", logoLines[i], modeArt[i])
		}
	}

	// Info line below the art.
	if color {
		fmt.Fprintf(os.Stderr, "\n  %sversion%s %s   %saddr%s %s\n\n",
			dim, reset, ver, dim, reset, addr)
	} else {
		fmt.Fprintf(os.Stderr, "\n  version %s   addr %s\n\n", ver, addr)
	}
}

// addrToURL converts a listen address (e.g. ":16500", "127.0.0.1:16500")
// into a tcp://host:port locator suitable for a slave to dial.
func addrToURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		port = strings.TrimPrefix(addr, ":")
	}
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	if port == "" {
		return "tcp://" + host
	}
	return fmt.Sprintf("tcp://%s:%s", host, port)
}

// PrintAccessURL prints the UI server's dial locator and a QR code
// encoding it to stderr, so an operator can point a mobile admin tool
// at the master without retyping the address. The QR code is only
// printed when stderr is a TTY.
func PrintAccessURL(addr string) {
	url := addrToURL(addr)
	isTTY := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	if isTTY {
		fmt.Fprintf(os.Stderr, "  %s%s➜%s  %s%s%s\n\n", bold, green, reset, bold, url, reset)
	} else {
		fmt.Fprintf(os.Stderr, "  ➜  %s\n\n", url)
	}

	if isTTY {
		printQR(url)
		fmt.Fprintln(os.Stderr)
	}
}

// PrintQRCode prints just a QR code for the given URL to stderr (TTY only).
func PrintQRCode(url string) {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return
	}
	printQR(url)
	fmt.Fprintln(os.Stderr)
}

func printQR(url string) {
	qrterminal.GenerateWithConfig(url, qrterminal.Config{
		Level:          qrterminal.L,
		Writer:         os.Stderr,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
	})
}
