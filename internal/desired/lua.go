package desired

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/fedsync/internal/federation"
)

// LoadLua runs a Lua script that returns an array of member tables, e.g.
//
//	local members = {}
//	for _, h in ipairs({"nd-b", "nd-c"}) do
//	  table.insert(members, {host = h, username = "admin", password = env("ND_PASSWORD")})
//	end
//	return members
//
// Scripts can call env(name[, default]) and log.debug/info/warn(msg).
func LoadLua(ctx context.Context, path string) ([]federation.DesiredMember, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	L.SetGlobal("env", L.NewFunction(luaEnv))
	L.PreloadModule("log", logLoader)
	if err := L.DoString(`log = require("log")`); err != nil {
		return nil, fmt.Errorf("load lua log module: %w", err)
	}

	log.Info().Str("path", path).Msg("Loading members script")

	top := L.GetTop()
	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("failed to execute members script: %w", err)
	}
	if L.GetTop() == top {
		return nil, fmt.Errorf("members script %s returned nothing", path)
	}

	ret := L.Get(-1)
	L.Pop(L.GetTop() - top)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("members script %s must return a table, got %s", path, ret.Type())
	}
	return membersFromTable(tbl)
}

func membersFromTable(tbl *lua.LTable) ([]federation.DesiredMember, error) {
	entries := make([]Entry, 0, tbl.Len())
	var err error
	for i := 1; i <= tbl.Len(); i++ {
		item, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("member %d: expected a table, got %s", i-1, tbl.RawGetInt(i).Type())
		}

		entry := Entry{}
		item.ForEach(func(k, v lua.LValue) {
			key, ok := k.(lua.LString)
			if !ok {
				err = fmt.Errorf("member %d: field keys must be strings", i-1)
				return
			}
			switch v.(type) {
			case lua.LString, lua.LNumber:
				entry[string(key)] = v.String()
			default:
				err = fmt.Errorf("member %d: field %s must be a string", i-1, key)
			}
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return Members(entries)
}

// luaEnv implements env(name[, default]).
func luaEnv(L *lua.LState) int {
	name := L.CheckString(1)
	if v, ok := os.LookupEnv(name); ok {
		L.Push(lua.LString(v))
		return 1
	}
	if L.GetTop() >= 2 {
		L.Push(L.Get(2))
		return 1
	}
	L.Push(lua.LNil)
	return 1
}

func logLoader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(func(L *lua.LState) int {
		log.Debug().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "info", L.NewFunction(func(L *lua.LState) int {
		log.Info().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.SetField(mod, "warn", L.NewFunction(func(L *lua.LState) int {
		log.Warn().Str("source", "lua").Msg(L.CheckString(1))
		return 0
	}))
	L.Push(mod)
	return 1
}
