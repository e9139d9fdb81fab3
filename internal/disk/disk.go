package disk

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// Usage is the free-space reading for the filesystem holding a path.
type Usage struct {
	Path        string
	FreeBytes   uint64
	TotalBytes  uint64
	UsedPercent float64
}

// GetUsage samples the filesystem that contains path.
func GetUsage(ctx context.Context, path string) (Usage, error) {
	st, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Usage{}, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return Usage{
		Path:        path,
		FreeBytes:   st.Free,
		TotalBytes:  st.Total,
		UsedPercent: st.UsedPercent,
	}, nil
}

// FreePercent returns the share of the filesystem still free.
func (u Usage) FreePercent() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return float64(u.FreeBytes) / float64(u.TotalBytes) * 100.0
}

// Sample reads usage for every path it can. Paths that fail are left out;
// a missing root must not stop a run from sampling the others.
func Sample(ctx context.Context, paths []string) map[string]Usage {
	out := make(map[string]Usage, len(paths))
	for _, p := range paths {
		u, err := GetUsage(ctx, p)
		if err != nil {
			continue
		}
		out[p] = u
	}
	return out
}
