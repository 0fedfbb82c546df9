// Package core adds shell commands of the standard UCI groups.
package core

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/uci.go/pkg/cli/sh"
	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

func parseUintArg(c *ishell.Context, index int, name string, bitSize int) (uint64, bool) {
	if len(c.Args) <= index {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.ParseUint(c.Args[index], 0, bitSize)
	if err != nil {
		c.Err(fmt.Errorf("Invalid %s: %v", name, err))
		return 0, false
	}
	return val, true
}

func sessionCmd(gid, oid byte) func(c *ishell.Context) {
	return sh.MustBeOpen(func(c *ishell.Context) {
		id, ok := parseUintArg(c, 0, "SESSION", 32)
		if !ok {
			return
		}
		sh.DoCommand(c, gid, oid, msgs.Map(msgs.P("session_id", msgs.Uint(id))))
	})
}

var (
	// DeviceResetCmd exposes core.device_reset command.
	DeviceResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "[TYPE]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			var resetType uint64
			if len(c.Args) > 0 {
				var ok bool
				if resetType, ok = parseUintArg(c, 0, "TYPE", 8); !ok {
					return
				}
			}
			sh.DoCommand(c, msgs.GroupCore, msgs.OIDCoreDeviceReset,
				msgs.Map(msgs.P("reset_type", msgs.Uint(resetType))))
		}),
	}

	// DeviceInfoCmd exposes core.device_info command.
	DeviceInfoCmd = ishell.Cmd{
		Name: "info",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			sh.DoCommand(c, msgs.GroupCore, msgs.OIDCoreDeviceInfo, msgs.Map())
		}),
	}

	// GetCapsCmd exposes core.get_caps command.
	GetCapsCmd = ishell.Cmd{
		Name: "caps",
		Help: "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			sh.DoCommand(c, msgs.GroupCore, msgs.OIDCoreGetCaps, msgs.Map())
		}),
	}

	// QueryTimestampCmd exposes core.query_timestamp command.
	QueryTimestampCmd = ishell.Cmd{
		Name:    "timestamp",
		Aliases: []string{"ts"},
		Help:    "",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			sh.DoCommand(c, msgs.GroupCore, msgs.OIDCoreQueryTimestamp, msgs.Map())
		}),
	}

	// SessionInitCmd exposes session.init command.
	SessionInitCmd = ishell.Cmd{
		Name:    "session.init",
		Aliases: []string{"si"},
		Help:    "SESSION [TYPE]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			id, ok := parseUintArg(c, 0, "SESSION", 32)
			if !ok {
				return
			}
			var sessionType uint64
			if len(c.Args) > 1 {
				if sessionType, ok = parseUintArg(c, 1, "TYPE", 8); !ok {
					return
				}
			}
			sh.DoCommand(c, msgs.GroupSession, msgs.OIDSessionInit, msgs.Map(
				msgs.P("session_id", msgs.Uint(id)),
				msgs.P("session_type", msgs.Uint(sessionType)),
			))
		}),
	}

	// SessionDeinitCmd exposes session.deinit command.
	SessionDeinitCmd = ishell.Cmd{
		Name:    "session.deinit",
		Aliases: []string{"sd"},
		Help:    "SESSION",
		Func:    sessionCmd(msgs.GroupSession, msgs.OIDSessionDeinit),
	}

	// SessionStateCmd exposes session.get_state command.
	SessionStateCmd = ishell.Cmd{
		Name:    "session.state",
		Aliases: []string{"ss"},
		Help:    "SESSION",
		Func:    sessionCmd(msgs.GroupSession, msgs.OIDSessionGetState),
	}

	// RangeStartCmd exposes range.start command.
	RangeStartCmd = ishell.Cmd{
		Name:    "range.start",
		Aliases: []string{"rs"},
		Help:    "SESSION",
		Func:    sessionCmd(msgs.GroupRanging, msgs.OIDRangeStart),
	}

	// RangeStopCmd exposes range.stop command.
	RangeStopCmd = ishell.Cmd{
		Name:    "range.stop",
		Aliases: []string{"rx"},
		Help:    "SESSION",
		Func:    sessionCmd(msgs.GroupRanging, msgs.OIDRangeStop),
	}
)

func init() {
	sh.AddCmds(
		&DeviceResetCmd,
		&DeviceInfoCmd,
		&GetCapsCmd,
		&QueryTimestampCmd,
		&SessionInitCmd,
		&SessionDeinitCmd,
		&SessionStateCmd,
		&RangeStartCmd,
		&RangeStopCmd,
	)
}
