package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreCreateAllocatesMonotonicNonZeroSEID(t *testing.T) {
	st := NewStore(4)
	a, err := st.Create(100)
	require.NoError(t, err)
	require.NotZero(t, a)

	b, err := st.Create(101)
	require.NoError(t, err)
	require.Greater(t, b, a)
}

func TestStoreCreateNoResourcesWhenFull(t *testing.T) {
	st := NewStore(2)
	_, err := st.Create(1)
	require.NoError(t, err)
	_, err = st.Create(2)
	require.NoError(t, err)

	_, err = st.Create(3)
	require.ErrorIs(t, err, ErrNoResources)
}

func TestStoreDeleteIsIdempotentOnUnknownSEID(t *testing.T) {
	st := NewStore(4)
	upSEID, err := st.Create(1)
	require.NoError(t, err)

	require.True(t, st.Delete(upSEID))
	require.False(t, st.Delete(upSEID), "second delete of the same SEID reports not found")
	require.False(t, st.Delete(9999), "deleting an unknown SEID reports not found, not an error")
}

func TestStoreDeleteFreesCapacityButNeverReusesSEID(t *testing.T) {
	st := NewStore(1)
	first, err := st.Create(1)
	require.NoError(t, err)
	require.True(t, st.Delete(first))

	second, err := st.Create(2)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Greater(t, second, first)
}

func TestStoreFindByTEIDPicksHighestPrecedenceAcrossSessions(t *testing.T) {
	st := NewStore(4)
	lowUPSEID, _ := st.Create(1)
	highUPSEID, _ := st.Create(2)

	low, _ := st.Find(lowUPSEID)
	low.Lock()
	require.NoError(t, low.AddPDR(PDR{ID: 1, Precedence: 10, SourceInterface: IfaceAccess, TEID: 0x42}))
	low.Unlock()

	high, _ := st.Find(highUPSEID)
	high.Lock()
	require.NoError(t, high.AddPDR(PDR{ID: 1, Precedence: 200, SourceInterface: IfaceAccess, TEID: 0x42}))
	high.Unlock()

	owner, pdr, ok := st.FindByTEID(0x42, IfaceAccess)
	require.True(t, ok)
	require.Equal(t, highUPSEID, owner.UPSEID)
	require.EqualValues(t, 200, pdr.Precedence)
}

func TestStoreFindByTEIDTiesBreakToLowestUPSEID(t *testing.T) {
	st := NewStore(4)
	firstUPSEID, _ := st.Create(1)
	secondUPSEID, _ := st.Create(2)

	first, _ := st.Find(firstUPSEID)
	first.Lock()
	require.NoError(t, first.AddPDR(PDR{ID: 1, Precedence: 50, SourceInterface: IfaceCore, TEID: 0x7}))
	first.Unlock()

	second, _ := st.Find(secondUPSEID)
	second.Lock()
	require.NoError(t, second.AddPDR(PDR{ID: 1, Precedence: 50, SourceInterface: IfaceCore, TEID: 0x7}))
	second.Unlock()

	owner, _, ok := st.FindByTEID(0x7, IfaceCore)
	require.True(t, ok)
	require.Equal(t, firstUPSEID, owner.UPSEID)
}

func TestStoreFindByTEIDNoMatch(t *testing.T) {
	st := NewStore(4)
	upSEID, _ := st.Create(1)
	s, _ := st.Find(upSEID)
	s.Lock()
	require.NoError(t, s.AddPDR(PDR{ID: 1, Precedence: 1, SourceInterface: IfaceAccess, TEID: 0x1}))
	s.Unlock()

	_, _, ok := st.FindByTEID(0x1, IfaceCore)
	require.False(t, ok, "source interface mismatch must not match")

	_, _, ok = st.FindByTEID(0x2, IfaceAccess)
	require.False(t, ok, "teid mismatch must not match")
}
