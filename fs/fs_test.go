package fs

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type FsSuite struct {
	suite.Suite
	fs Filesys
}

func TestFs(t *testing.T) {
	suite.Run(t, new(FsSuite))
}

func (suite *FsSuite) SetupTest() {
	suite.fs = MemFs()
}

func (suite *FsSuite) CreateFile(fname string, contents []byte) {
	f, err := suite.fs.Create(fname)
	suite.Require().NoError(err)
	n, err := f.Write(contents)
	suite.Require().NoError(err)
	suite.Require().Equal(len(contents), n)
	suite.Require().NoError(f.Close())
}

func (suite *FsSuite) ReadFile(fname string) []byte {
	f, err := suite.fs.Open(fname)
	suite.Require().NoError(err)
	defer f.Close()
	data, err := f.ReadAt(0, f.Size())
	suite.Require().NoError(err)
	return data
}

func (suite *FsSuite) TestCreate() {
	suite.CreateFile("foo", []byte{2})
	suite.Equal([]byte{2}, suite.ReadFile("foo"),
		"file should have same contents as written")
}

func (suite *FsSuite) TestOpenMissing() {
	_, err := suite.fs.Open("nope")
	suite.Error(err)
}

func (suite *FsSuite) TestList() {
	suite.CreateFile("foo", []byte{})
	suite.CreateFile("bar", []byte{})
	names, err := suite.fs.List()
	suite.NoError(err)
	suite.ElementsMatch([]string{"foo", "bar"}, names)
}

func (suite *FsSuite) TestDelete() {
	suite.CreateFile("foo", []byte{})
	suite.NoError(suite.fs.Delete("foo"))
	names, err := suite.fs.List()
	suite.NoError(err)
	suite.Empty(names)
}

func (suite *FsSuite) TestSize() {
	suite.CreateFile("foo", []byte{1, 2, 3})
	f, err := suite.fs.Open("foo")
	suite.Require().NoError(err)
	defer f.Close()
	suite.Equal(3, f.Size())
}

func (suite *FsSuite) TestReadAt() {
	suite.CreateFile("foo", []byte{1, 2, 3})
	f, err := suite.fs.Open("foo")
	suite.Require().NoError(err)
	defer f.Close()
	data, err := f.ReadAt(1, 2)
	suite.NoError(err)
	suite.Equal([]byte{2, 3}, data)
}

func (suite *FsSuite) TestDeleteAll() {
	suite.CreateFile("foo", nil)
	suite.CreateFile("bar", nil)
	suite.NoError(DeleteAll(suite.fs))
	names, err := suite.fs.List()
	suite.NoError(err)
	suite.Empty(names)
}
