// Package stat holds the user-visible stat record returned by
// fstat/stat calls.
package stat

/// Stat_t mirrors the fields the original fs.c 'stati' fills in:
/// device, inode number, type, link count, and size. It intentionally
/// carries none of the extra bookkeeping fields (uid, timestamps,
/// block counts) the teacher's own stat record historically grew,
/// since the source spec never asked for them.
type Stat_t struct {
	dev   uint
	ino   uint
	mode  uint
	nlink uint
	size  uint
}

/// Wdev stores the device ID.
func (st *Stat_t) Wdev(v uint) { st.dev = v }

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) { st.ino = v }

/// Wmode records the file type tag.
func (st *Stat_t) Wmode(v uint) { st.mode = v }

/// Wnlink records the link count.
func (st *Stat_t) Wnlink(v uint) { st.nlink = v }

/// Wsize records the file size.
func (st *Stat_t) Wsize(v uint) { st.size = v }

/// Dev returns the stored device ID.
func (st *Stat_t) Dev() uint { return st.dev }

/// Ino returns the stored inode number.
func (st *Stat_t) Ino() uint { return st.ino }

/// Mode returns the stored file type tag.
func (st *Stat_t) Mode() uint { return st.mode }

/// Nlink returns the stored link count.
func (st *Stat_t) Nlink() uint { return st.nlink }

/// Size returns the stored size.
func (st *Stat_t) Size() uint { return st.size }
