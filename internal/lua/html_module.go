package lua

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lua "github.com/yuin/gopher-lua"
)

const luaSelectionTypeName = "html_selection"

// HTMLModule exposes goquery to scripts as require("html").
type HTMLModule struct{}

func NewHTMLModule() *HTMLModule {
	return &HTMLModule{}
}

func (h *HTMLModule) Name() string {
	return "html"
}

func (h *HTMLModule) Loader(L *lua.LState) int {
	mt := L.NewTypeMetatable(luaSelectionTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"select":     h.selectAll,
		"select_one": h.selectOne,
		"text":       h.text,
		"attr":       h.attr,
		"html":       h.html,
	}))

	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"parse":      h.parse,
		"select":     h.selectAll,
		"select_one": h.selectOne,
		"text":       h.text,
		"attr":       h.attr,
		"html":       h.html,
		"table":      h.table,
	})
	L.Push(mod)
	return 1
}

func pushSelection(L *lua.LState, s *goquery.Selection) {
	ud := L.NewUserData()
	ud.Value = s
	L.SetMetatable(ud, L.GetTypeMetatable(luaSelectionTypeName))
	L.Push(ud)
}

func checkSelection(L *lua.LState, n int) *goquery.Selection {
	ud := L.CheckUserData(n)
	s, ok := ud.Value.(*goquery.Selection)
	if !ok {
		L.ArgError(n, "expected html selection")
		return nil
	}
	return s
}

func (h *HTMLModule) parse(L *lua.LState) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(L.CheckString(1)))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("failed to parse HTML: %s", err.Error())))
		return 2
	}
	pushSelection(L, doc.Selection)
	return 1
}

func (h *HTMLModule) selectAll(L *lua.LState) int {
	s := checkSelection(L, 1)
	elements := L.NewTable()
	s.Find(L.CheckString(2)).Each(func(_ int, el *goquery.Selection) {
		ud := L.NewUserData()
		ud.Value = el
		L.SetMetatable(ud, L.GetTypeMetatable(luaSelectionTypeName))
		elements.Append(ud)
	})
	L.Push(elements)
	return 1
}

func (h *HTMLModule) selectOne(L *lua.LState) int {
	found := checkSelection(L, 1).Find(L.CheckString(2)).First()
	if found.Length() == 0 {
		L.Push(lua.LNil)
		return 1
	}
	pushSelection(L, found)
	return 1
}

func (h *HTMLModule) text(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(checkSelection(L, 1).Text())))
	return 1
}

func (h *HTMLModule) attr(L *lua.LState) int {
	v, ok := checkSelection(L, 1).Attr(L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v))
	return 1
}

func (h *HTMLModule) html(L *lua.LState) int {
	content, err := checkSelection(L, 1).Html()
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(fmt.Sprintf("failed to get HTML: %s", err.Error())))
		return 2
	}
	L.Push(lua.LString(content))
	return 1
}

// table(sel, selector) returns the rows of the first matching <table> as a
// list of header-keyed tables.
func (h *HTMLModule) table(L *lua.LState) int {
	tbl := checkSelection(L, 1).Find(L.OptString(2, "table")).First()
	headers, rows := TableRows(tbl)

	out := L.NewTable()
	for _, row := range rows {
		r := L.NewTable()
		for i, cell := range row {
			if i < len(headers) {
				r.RawSetString(headers[i], lua.LString(cell))
			}
		}
		out.Append(r)
	}
	L.Push(out)
	return 1
}

// TableRows splits a <table> into its header row and data rows. Headers come
// from <th> cells, or from the first row when the table has none.
func TableRows(tbl *goquery.Selection) ([]string, [][]string) {
	var headers []string
	var rows [][]string

	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(c.Text()), " "))
		})
		if len(cells) == 0 {
			return
		}
		if headers == nil {
			headers = cells
			return
		}
		rows = append(rows, cells)
	})
	return headers, rows
}
