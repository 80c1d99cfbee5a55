package worker

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/srediag/regionshm/pkg/regionlock"
	"github.com/srediag/regionshm/pkg/shm"
)

// Invocation is everything a worker process needs: its config and the names
// of the shared buffer and lock set to attach to.
type Invocation struct {
	Config Config
	Buffer shm.Options
	Locks  regionlock.Options
}

// Args encodes the invocation as command-line flags understood by BindFlags.
func (inv Invocation) Args() []string {
	regions := make([]string, len(inv.Config.Regions))
	for i, r := range inv.Config.Regions {
		regions[i] = strconv.Itoa(r)
	}
	args := []string{
		"--index=" + strconv.Itoa(inv.Config.Index),
		"--op=" + inv.Config.Op.String(),
		"--cadence=" + inv.Config.Cadence.String(),
		"--pause=" + inv.Config.Pause.String(),
		"--lifetime=" + inv.Config.Lifetime.String(),
		"--shm-name=" + inv.Buffer.Name,
		"--shm-dir=" + inv.Buffer.Dir,
		"--len=" + strconv.Itoa(inv.Buffer.Len),
		"--region-count=" + strconv.Itoa(inv.Buffer.Regions),
		"--lock-dir=" + inv.Locks.Dir,
		"--lock-prefix=" + inv.Locks.Prefix,
	}
	// An empty list would not parse as an int slice.
	if len(regions) > 0 {
		args = append(args, "--regions="+strings.Join(regions, ","))
	}
	return args
}

// BindFlags registers the worker flags on fs, decoding into inv.
func BindFlags(fs *pflag.FlagSet, inv *Invocation) {
	fs.IntVar(&inv.Config.Index, "index", 0, "worker index")
	fs.Var(&inv.Config.Op, "op", "operation: max, average, sort, double, zero-negatives, reverse")
	fs.DurationVar(&inv.Config.Cadence, "cadence", 0, "rest between cycles")
	fs.DurationVar(&inv.Config.Pause, "pause", 0, "rest after each region")
	fs.DurationVar(&inv.Config.Lifetime, "lifetime", 0, "total resting time before exit")
	fs.IntSliceVar(&inv.Config.Regions, "regions", nil, "region indices, in visiting order")
	fs.StringVar(&inv.Buffer.Name, "shm-name", shm.DefaultName, "shared buffer name")
	fs.StringVar(&inv.Buffer.Dir, "shm-dir", "", "shared memory directory")
	fs.IntVar(&inv.Buffer.Len, "len", 0, "number of values in the buffer")
	fs.IntVar(&inv.Buffer.Regions, "region-count", 0, "number of regions in the buffer")
	fs.StringVar(&inv.Locks.Dir, "lock-dir", "", "region lock directory")
	fs.StringVar(&inv.Locks.Prefix, "lock-prefix", regionlock.DefaultPrefix, "region lock name prefix")
}
