/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `4
---
0.52 0.58 0.59 1/617 12345
---
MemTotal:        8000000 kB
MemFree:         2000000 kB
MemAvailable:    5000000 kB
Buffers:          300000 kB
Cached:          1500000 kB
---
42000
---
430000.12 1700000.00
`

func TestParseProbeOutput(t *testing.T) {
	metrics, err := parseProbeOutput(sampleProbe)
	require.NoError(t, err)

	assert.InDelta(t, 13.0, metrics.CPUPercent, 0.1) // 0.52 / 4 cores
	assert.Equal(t, uint64(8000000*1024), metrics.RAMTotal)
	assert.Equal(t, uint64(3000000*1024), metrics.RAMUsed) // total - available
	require.NotNil(t, metrics.TempC)
	assert.InDelta(t, 42.0, *metrics.TempC, 0.01)
	assert.Equal(t, "4d 23h", metrics.Uptime)
}

func TestParseProbeOutput_NoMemAvailable(t *testing.T) {
	probe := `2
---
1.00 0.50 0.30 1/100 42
---
MemTotal:        4000000 kB
MemFree:         1000000 kB
Buffers:          200000 kB
Cached:           800000 kB
---

---
3600
`

	metrics, err := parseProbeOutput(probe)
	require.NoError(t, err)

	// Falls back to free + buffers + cached.
	assert.Equal(t, uint64(2000000*1024), metrics.RAMUsed)
	assert.Nil(t, metrics.TempC)
	assert.Equal(t, "1h", metrics.Uptime)
}

func TestParseProbeOutput_Truncated(t *testing.T) {
	_, err := parseProbeOutput("4\n---\n0.5 0.4 0.3")
	require.Error(t, err)
}

func TestParseProbeOutput_LoadClamped(t *testing.T) {
	probe := `1
---
25.00 20.00 15.00 9/999 1
---
MemTotal: 1000 kB
---

---
60
`

	metrics, err := parseProbeOutput(probe)
	require.NoError(t, err)
	assert.Equal(t, 100.0, metrics.CPUPercent)
}

func TestParseDiskUsage(t *testing.T) {
	output := `Filesystem     Mounted on           1B-blocks          Used
/dev/sda1      /             250000000000   90000000000
/dev/sdb1      /mnt/storage 4000000000000 2100000000000
tmpfs          /tmp             800000000     100000000
/dev/sdc1      /var          20000000000    5000000000
`

	disks := parseDiskUsage(output)
	require.Len(t, disks, 2)

	assert.Equal(t, "/", disks[0].Mount)
	assert.Equal(t, uint64(250000000000), disks[0].Total)
	assert.Equal(t, uint64(90000000000), disks[0].Used)

	// /tmp and /var are not reported; /mnt/* is.
	assert.Equal(t, "/mnt/storage", disks[1].Mount)
}

func TestParseDiskUsage_Empty(t *testing.T) {
	assert.Nil(t, parseDiskUsage(""))
	assert.Nil(t, parseDiskUsage("Filesystem Mounted on 1B-blocks Used\n"))
}

func TestReportedMount(t *testing.T) {
	assert.True(t, reportedMount("/"))
	assert.True(t, reportedMount("/home"))
	assert.True(t, reportedMount("/mnt/media"))
	assert.True(t, reportedMount("/srv/backups"))
	assert.False(t, reportedMount("/tmp"))
	assert.False(t, reportedMount("/boot/efi"))
	assert.False(t, reportedMount("/var"))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0h", formatUptime(120))
	assert.Equal(t, "5h", formatUptime(5*3600+1200))
	assert.Equal(t, "3d 2h", formatUptime(3*86400+2*3600+60))
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, clampPercent(-5))
	assert.Equal(t, 55.5, clampPercent(55.5))
	assert.Equal(t, 100.0, clampPercent(250))
}

func TestParseMeminfo(t *testing.T) {
	info := parseMeminfo("MemTotal: 100 kB\nbogus line\nMemFree: 40 kB\n")

	assert.Equal(t, uint64(100*1024), info["MemTotal"])
	assert.Equal(t, uint64(40*1024), info["MemFree"])
	assert.NotContains(t, info, "bogus line")
}
