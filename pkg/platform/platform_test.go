package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/kernel"
)

const samplePlatform = `
hosts:
  - name: HostA
    cores: 4
    speed: 1Gf
    ram: 16GB
    disks:
      - mount: /
        size: 100GB
        read_bw: 100MBps
        write_bw: 80MBps
  - name: HostB
    cores: 2
    speed: 500Mf
links:
  - name: link1
    bandwidth: 125MBps
    latency: 100us
routes:
  - src: HostA
    dst: HostB
    links: [link1]
`

func TestParseAndApplyPlatform(t *testing.T) {
	p, err := Parse([]byte(samplePlatform))
	require.NoError(t, err)

	k := kernel.New(kernel.Config{})
	require.NoError(t, p.Apply(k))

	assert.Equal(t, 4, k.HostNumCores("HostA"))
	assert.Equal(t, 1e9, k.HostFlopRate("HostA"))
	assert.Equal(t, int64(16e9), k.HostMemCapacity("HostA"))
	assert.True(t, k.IsHostOn("HostB"))
	assert.True(t, k.IsLinkOn("link1"))

	disk := k.Host("HostA").DiskAt("/")
	require.NotNil(t, disk)
	assert.Equal(t, int64(100e9), disk.Capacity)
	assert.Equal(t, 1e8, disk.ReadBW)
	assert.Equal(t, 8e7, disk.WriteBW)
}

func TestPlatformValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no hosts", "links: []\n"},
		{"duplicate host", "hosts:\n  - {name: A, cores: 1, speed: 1Gf}\n  - {name: A, cores: 1, speed: 1Gf}\n"},
		{"zero cores", "hosts:\n  - {name: A, cores: 0, speed: 1Gf}\n"},
		{"bad speed", "hosts:\n  - {name: A, cores: 1, speed: quick}\n"},
		{"route to unknown host", "hosts:\n  - {name: A, cores: 1, speed: 1Gf}\nroutes:\n  - {src: A, dst: Z, links: []}\n"},
		{"route over unknown link", "hosts:\n  - {name: A, cores: 1, speed: 1Gf}\n  - {name: B, cores: 1, speed: 1Gf}\nroutes:\n  - {src: A, dst: B, links: [nope]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
