package hdf5

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroups(t *testing.T) {
	f, p := create(t)
	g, err := f.CreateGroup("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "c", g.Name())
	assert.Equal(t, "/a/b/c", g.Path())

	again, err := f.CreateGroup("a/b/")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", again.Path())

	b, err := f.OpenGroup("/a/b")
	require.NoError(t, err)
	_, err = b.CreateGroup("d")
	require.NoError(t, err)
	_, err = b.CreateGroup("")
	assert.ErrorIs(t, err, ErrInvalidPath)

	for i := 0; i < 12; i++ {
		_, err := f.CreateGroup(fmt.Sprintf("/many/g%02d", i))
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	r := reopen(t, p)
	members, err := r.Root().Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "many"}, members)

	b, err = r.OpenGroup("/a/b")
	require.NoError(t, err)
	members, err = b.Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, members)

	many, err := r.OpenGroup("/many")
	require.NoError(t, err)
	members, err = many.Members()
	require.NoError(t, err)
	assert.Len(t, members, 12)
	assert.Equal(t, "g11", members[11])

	c, err := r.Root().OpenGroup("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", c.Path())
}

func TestOpenWrongKind(t *testing.T) {
	f, _ := create(t)
	defer f.Close()
	_, err := f.Root().CreateDataset("g/data", []int32{1})
	require.NoError(t, err)

	_, err = f.OpenGroup("/g/data")
	assert.ErrorIs(t, err, ErrNotGroup)
	_, err = f.OpenDataset("/g")
	assert.ErrorIs(t, err, ErrNotDataset)
	_, err = f.OpenDataset("/g/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.OpenDataset("/g/data/below")
	assert.ErrorIs(t, err, ErrNotGroup)
	_, err = f.CreateGroup("/g/data/sub")
	assert.ErrorIs(t, err, ErrNotGroup)
}

func TestSoftLinks(t *testing.T) {
	f, p := create(t)
	_, err := f.Root().CreateDataset("target", []int32{5})
	require.NoError(t, err)
	require.NoError(t, f.CreateSoftLink("/aliases/current", "/target"))
	require.NoError(t, f.CreateSoftLink("/dangling", "/nowhere"))
	assert.ErrorIs(t, f.CreateSoftLink("/", "/target"), ErrInvalidPath)
	assert.ErrorIs(t, f.CreateSoftLink("/dangling", "/target"), ErrExists)

	aliases, err := f.OpenGroup("/aliases")
	require.NoError(t, err)
	require.NoError(t, aliases.CreateSoftLink("up", "/"))

	assert.True(t, f.IsDataset("/aliases/current"))
	assert.True(t, f.Exists("/aliases"))
	assert.False(t, f.IsDataset("/aliases"))
	assert.False(t, f.Exists("/dangling"))
	assert.True(t, f.Exists("/aliases/up/target"))

	assert.ErrorIs(t, f.SetAttribute("/aliases/current", "x", int64(1)), ErrUnsupported)
	require.NoError(t, f.Close())

	_, vals := readInt32s(t, p, "/aliases/current")
	assert.Equal(t, []int32{5}, vals)
}

func TestCircularSoftLinks(t *testing.T) {
	f, _ := create(t)
	defer f.Close()
	require.NoError(t, f.CreateSoftLink("/a", "/b"))
	require.NoError(t, f.CreateSoftLink("/b", "/a"))
	require.NoError(t, f.CreateSoftLink("/self", "/self"))

	for _, p := range []string{"/a", "/b", "/self"} {
		_, err := f.OpenGroup(p)
		assert.ErrorIs(t, err, ErrLinkDepth, p)
		assert.False(t, f.Exists(p))
	}
}

func newTree(t *testing.T) *File {
	t.Helper()
	f, _ := create(t)
	t.Cleanup(func() { f.Close() })
	_, err := f.Root().CreateDataset("top", []float64{1}, WithAttribute("units", "m"))
	require.NoError(t, err)
	_, err = f.Root().CreateDataset("sensors/temp", []float32{20, 21},
		WithAttribute("scale", 0.5), WithAttribute("ids", []int32{4, 5}))
	require.NoError(t, err)
	_, err = f.CreateGroup("/sensors/empty")
	require.NoError(t, err)
	require.NoError(t, f.SetAttribute("/", "title", "tree"))
	require.NoError(t, f.SetAttribute("/sensors", "count", int64(1)))
	require.NoError(t, f.CreateSoftLink("/broken", "/missing"))
	return f
}

func TestWalk(t *testing.T) {
	f := newTree(t)
	var seen []string
	var failed []string
	err := Walk(f.Root(), func(p string, obj interface{}, err error) error {
		if err != nil {
			failed = append(failed, p)
			assert.Nil(t, obj)
			return nil
		}
		switch obj.(type) {
		case *Group:
			seen = append(seen, "g "+p)
		case *Dataset:
			seen = append(seen, "d "+p)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"g /", "d /top", "g /sensors", "d /sensors/temp", "g /sensors/empty"}, seen)
	assert.Equal(t, []string{"/broken"}, failed)

	stop := errors.New("stop")
	n := 0
	err = Walk(f.Root(), func(string, interface{}, error) error {
		if n++; n == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n)
}

func TestWalkAttrs(t *testing.T) {
	f := newTree(t)
	var infos []AttrInfo
	require.NoError(t, f.WalkAttrs(func(info AttrInfo) error {
		infos = append(infos, info)
		return nil
	}))

	var paths []string
	for _, info := range infos {
		paths = append(paths, info.Path)
		assert.NoError(t, info.Err, info.Path)
		assert.NotNil(t, info.Attr, info.Path)
	}
	assert.Equal(t, []string{
		"/@title",
		"/top@units",
		"/sensors@count",
		"/sensors/temp@scale",
		"/sensors/temp@ids",
	}, paths)

	ids := infos[4]
	assert.Equal(t, "/sensors/temp", ids.ObjectPath)
	assert.Equal(t, "dataset", ids.ObjectType)
	assert.Equal(t, "ids", ids.Name)
	assert.Equal(t, []int64{4, 5}, ids.Value)
	assert.Equal(t, "group", infos[2].ObjectType)
	assert.Equal(t, int64(1), infos[2].Value)

	stop := errors.New("stop")
	calls := 0
	err := f.WalkAttrs(func(AttrInfo) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
