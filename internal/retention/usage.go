package retention

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Usage measures how many bytes a set of directories occupy.
type Usage interface {
	Bytes(ctx context.Context, dirs ...string) (int64, error)
}

// DuUsage shells out to `du -sk`, which reports allocated blocks rather than
// apparent sizes.
type DuUsage struct {
	// Command overrides the binary, "du" when empty.
	Command string
}

// Bytes sums the kilobyte totals du prints for each directory. Missing
// directories count as empty.
func (d DuUsage) Bytes(ctx context.Context, dirs ...string) (int64, error) {
	var present []string
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err == nil {
			present = append(present, dir)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}
	bin := d.Command
	if bin == "" {
		bin = "du"
	}
	args := append([]string{"-sk"}, present...)
	// #nosec G204 -- arguments are configured directory paths.
	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("run %s: %w", bin, err)
	}
	return parseDu(out)
}

func parseDu(out []byte) (int64, error) {
	var total int64
	for _, line := range bytes.Split(bytes.TrimSpace(out), []byte("\n")) {
		fields := strings.Fields(string(line))
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse du output %q: %w", line, err)
		}
		total += kb * 1024
	}
	return total, nil
}

// WalkUsage sums the apparent size of every regular file under the directories.
type WalkUsage struct {
	Fs afero.Fs
}

// Bytes walks each directory. Missing directories count as empty.
func (w WalkUsage) Bytes(ctx context.Context, dirs ...string) (int64, error) {
	var total int64
	for _, dir := range dirs {
		ok, err := afero.DirExists(w.Fs, dir)
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !ok {
			continue
		}
		err = afero.Walk(w.Fs, dir, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if info.Mode().IsRegular() {
				total += info.Size()
			}
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	return total, nil
}
