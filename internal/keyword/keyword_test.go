package keyword

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seanfarley/fromcvs/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRev() *schema.RevisionRecord {
	return &schema.RevisionRecord{
		Rev:    "1.4",
		File:   "src/main.c",
		Date:   time.Date(2003, 6, 10, 9, 0, 0, 0, time.UTC),
		Author: "alice",
		State:  schema.StateNormal,
		Classification: schema.Classification{
			Syms: []string{"RELENG_1"},
		},
	}
}

func newRoot(t *testing.T, config string) string {
	t.Helper()
	root := t.TempDir()
	if config != "" {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "CVSROOT"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, "CVSROOT", "config"), []byte(config), 0o644))
	}
	return root
}

func TestExpander_Modes(t *testing.T) {
	e, err := New("/cvs", "proj")
	require.NoError(t, err)
	in := "/* $Id: stale value $ */\n$Revision$ by $Author$\n"

	tests := []struct {
		mode schema.ExpandMode
		want string
	}{
		{schema.ExpandKV, "/* $Id: main.c,v 1.4 2003/06/10 09:00:00 alice Exp $ */\n$Revision: 1.4 $ by $Author: alice $\n"},
		{"", "/* $Id: main.c,v 1.4 2003/06/10 09:00:00 alice Exp $ */\n$Revision: 1.4 $ by $Author: alice $\n"},
		{schema.ExpandKVL, "/* $Id: main.c,v 1.4 2003/06/10 09:00:00 alice Exp $ */\n$Revision: 1.4 $ by $Author: alice $\n"},
		{schema.ExpandK, "/* $Id$ */\n$Revision$ by $Author$\n"},
		{schema.ExpandV, "/* main.c,v 1.4 2003/06/10 09:00:00 alice Exp */\n1.4 by alice\n"},
		{schema.ExpandO, in},
		{schema.ExpandB, in},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			got := e.Expand(&schema.FileContent{Data: []byte(in), Expand: tt.mode}, testRev())
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestExpander_Keywords(t *testing.T) {
	e, err := New("/cvs", "proj")
	require.NoError(t, err)

	tests := map[string]string{
		"$CVSHeader$": "$CVSHeader: proj/src/main.c,v 1.4 2003/06/10 09:00:00 alice Exp $",
		"$Header$":    "$Header: /cvs/proj/src/main.c,v 1.4 2003/06/10 09:00:00 alice Exp $",
		"$Date$":      "$Date: 2003/06/10 09:00:00 $",
		"$Name$":      "$Name: RELENG_1 $",
		"$RCSfile$":   "$RCSfile: main.c,v $",
		"$Source$":    "$Source: /cvs/proj/src/main.c,v $",
		"$State$":     "$State: Exp $",
		"$Unknown$":   "$Unknown$",
		"$Id\n$":      "$Id\n$",
	}
	for in, want := range tests {
		got := e.Expand(&schema.FileContent{Data: []byte(in)}, testRev())
		assert.Equal(t, want, string(got), in)
	}
}

func TestExpander_LocalKeyword(t *testing.T) {
	root := newRoot(t, "# local keywords\nLocalKeyword=FreeBSD=CVSHeader\ntag=NetBSD\n")
	e, err := New(root, "proj")
	require.NoError(t, err)

	got := e.Expand(&schema.FileContent{Data: []byte("$FreeBSD$ $NetBSD$")}, testRev())
	assert.Equal(t, "$FreeBSD: proj/src/main.c,v 1.4 2003/06/10 09:00:00 alice Exp $ $NetBSD: main.c,v 1.4 2003/06/10 09:00:00 alice Exp $", string(got))
}

func TestExpander_KeywordExpandLists(t *testing.T) {
	root := newRoot(t, "LocalKeyword=FreeBSD=Id\nKeywordExpand=iFreeBSD,Revision\n")
	e, err := New(root, "proj")
	require.NoError(t, err)
	got := e.Expand(&schema.FileContent{Data: []byte("$FreeBSD$ $Id$ $Revision$")}, testRev())
	assert.Equal(t, "$FreeBSD: main.c,v 1.4 2003/06/10 09:00:00 alice Exp $ $Id$ $Revision: 1.4 $", string(got))

	root = newRoot(t, "tagexpand=eId,Author\n")
	e, err = New(root, "proj")
	require.NoError(t, err)
	got = e.Expand(&schema.FileContent{Data: []byte("$Id$ $Author$ $Revision$")}, testRev())
	assert.Equal(t, "$Id$ $Author$ $Revision: 1.4 $", string(got))

	root = newRoot(t, "KeywordExpand=i\n")
	e, err = New(root, "proj")
	require.NoError(t, err)
	in := []byte("$Id$ $Revision$")
	assert.Equal(t, in, e.Expand(&schema.FileContent{Data: in}, testRev()))
}

func TestExpander_UnknownBaseKeyword(t *testing.T) {
	_, err := New(newRoot(t, "LocalKeyword=Mine=Nope\n"), "proj")
	assert.Error(t, err)
}

func TestExpander_DeadState(t *testing.T) {
	e, err := New("/cvs", "proj")
	require.NoError(t, err)
	rev := testRev()
	rev.State = schema.StateDead
	assert.Equal(t, "$State: dead $", string(e.Expand(&schema.FileContent{Data: []byte("$State$")}, rev)))
}
