// Package savepersist reads and writes the two cartridge-adjacent
// sidecar files the emulator keeps next to a ROM: battery-backed
// external RAM (spec.md §6) and, for MBC3 carts, a textual real-time
// clock record that survives the process being closed.
package savepersist

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
)

// BatteryPath derives the conventional .sav sidecar path for a ROM file,
// replacing its extension (or appending one, for extensionless ROMs).
func BatteryPath(romPath string) string {
	ext := romExt(romPath)
	return strings.TrimSuffix(romPath, ext) + ".sav"
}

// RTCPath derives the conventional .rtc sidecar path for a ROM file.
func RTCPath(romPath string) string {
	ext := romExt(romPath)
	return strings.TrimSuffix(romPath, ext) + ".rtc"
}

func romExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// LoadBattery reads a .sav file and restores it into c, if c has
// battery-backed RAM. Returns false without error if path doesn't exist.
func LoadBattery(path string, c cart.Cartridge) (bool, error) {
	if c == nil || !c.HasBattery() {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("savepersist: load battery: %w", err)
	}
	c.LoadRAMBytes(data)
	return true, nil
}

// SaveBattery writes c's external RAM to path, if c has battery-backed
// RAM. No-op (and no file written) otherwise.
func SaveBattery(path string, c cart.Cartridge) (bool, error) {
	if c == nil || !c.HasBattery() {
		return false, nil
	}
	data := c.RAMBytes()
	if data == nil {
		return false, nil
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("savepersist: save battery: %w", err)
	}
	return true, nil
}

// rtcMagic tags the textual RTC sidecar format: one POSIX timestamp line
// followed by the five RTC register bytes, one per line.
const rtcMagic = "GBRTC1"

// SaveRTC snapshots c's real-time clock (if it implements cart.RTC) to a
// small text file alongside the .sav, stamped with the current time so
// a later LoadRTC can cascade elapsed wall-clock seconds into the clock.
func SaveRTC(path string, c cart.Cartridge) (bool, error) {
	rtc, ok := c.(cart.RTC)
	if !ok {
		return false, nil
	}
	s := rtc.RTCSnapshot()
	var sb strings.Builder
	fmt.Fprintln(&sb, rtcMagic)
	fmt.Fprintln(&sb, time.Now().Unix())
	fmt.Fprintln(&sb, s.Seconds)
	fmt.Fprintln(&sb, s.Minutes)
	fmt.Fprintln(&sb, s.Hours)
	fmt.Fprintln(&sb, s.DayLow)
	fmt.Fprintln(&sb, s.DayHigh)
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return false, fmt.Errorf("savepersist: save rtc: %w", err)
	}
	return true, nil
}

// LoadRTC reads a previously-written RTC sidecar and applies it to c
// (if c implements cart.RTC), cascading the wall-clock time elapsed
// since the file was written into the clock via LoadRTCSnapshot.
func LoadRTC(path string, c cart.Cartridge) (bool, error) {
	rtc, ok := c.(cart.RTC)
	if !ok {
		return false, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("savepersist: load rtc: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	fields := make([]string, 0, 7)
	for sc.Scan() {
		fields = append(fields, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("savepersist: load rtc: %w", err)
	}
	if len(fields) != 7 || fields[0] != rtcMagic {
		return false, fmt.Errorf("savepersist: load rtc: malformed sidecar %s", path)
	}

	savedAt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return false, fmt.Errorf("savepersist: load rtc: bad timestamp: %w", err)
	}
	var regs [5]byte
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseUint(fields[2+i], 10, 8)
		if err != nil {
			return false, fmt.Errorf("savepersist: load rtc: bad register %d: %w", i, err)
		}
		regs[i] = byte(v)
	}
	state := cart.RTCState{
		Seconds: regs[0], Minutes: regs[1], Hours: regs[2],
		DayLow: regs[3], DayHigh: regs[4],
	}
	elapsed := time.Now().Unix() - savedAt
	if elapsed < 0 {
		elapsed = 0
	}
	rtc.LoadRTCSnapshot(state, elapsed)
	return true, nil
}
