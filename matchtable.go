package jojodiff

import "errors"

// Constants of §4.4 (sizes and thresholds) and the check() negative
// sentinels of the Match record's test_len field.
const (
	defaultEqlMin = 4
	eqlGood       = 8
	defaultEqlMax = 256
	minDist       = 1024
	maxDist       = 2 * 1024 * 1024
	fuzziness     = 0

	cmpInvalid     = -1
	cmpSkip        = -2
	cmpEndOfBuffer = -3
)

// Outcome is the result of MatchTable.Add/Cleanup, per §4.4.1.
type Outcome int

const (
	OutError Outcome = iota
	OutFull
	OutEnlarged
	OutInvalid
	OutGood
	OutBest
	OutValid
)

const noRecord = -1

// matchRecord is one candidate equal-region. Lists are represented as
// integer links into the owning MatchTable's records slice rather than
// pointers, per the systems-reimplementation guidance of §9.
type matchRecord struct {
	inUse bool

	nextAge int // next on the old/new aging list, or noRecord
	nextCol int // next in the colliding-delta bucket
	nextGld int // next in the gliding-source bucket

	count int
	glide int64 // 0 = not gliding, else the glide step (saturated at the table's maxGlide, the fingerprint's sample size)

	newFirst int64
	newLast  int64
	orgPos   int64 // most recently confirmed source position
	delta    int64 // orgPos - newLast, the colliding key

	testPos int64
	testLen int64 // >=0: confirmed length, or one of the cmp* sentinels
}

// MatchTable is the bounded set of candidate equal-regions between
// source and destination described in §4.4: it accumulates hits from
// the lookahead search and selects the single best one at each
// decision point.
type MatchTable struct {
	index *Index
	org   ByteSource
	new_  ByteSource

	compareAll bool
	aheadMax   int
	maxGlide   int64 // glide step saturates at the fingerprint's sample size, per §4.4.1

	// eqlMin/eqlMax implement the -n/-x match_min/match_max tuning
	// knobs of §12.7: the shortest confirmed run worth keeping, and the
	// length at which a run is trusted without further extension.
	eqlMin int64
	eqlMax int64

	records []matchRecord
	free    []int // stack of unused record indices

	colBuckets []int
	gldBuckets []int

	oldHead, newHead, newTail int

	best    int
	bestOrg int64
	bestNew int64
	bestCmp int64

	oldLimit int64

	reliability int
	hashRepairs int
}

// NewMatchTable constructs a match table of the given capacity (§4.4:
// secondary hash structures are sized to the largest prime not
// exceeding 2*size).
func NewMatchTable(index *Index, org, new_ ByteSource, size int, compareAll bool, aheadMax int) *MatchTable {
	return NewMatchTableWithBounds(index, org, new_, size, compareAll, aheadMax, defaultEqlMin, defaultEqlMax)
}

// NewMatchTableWithBounds is NewMatchTable with explicit match_min/
// match_max bounds, wired from the -n/-x flags.
func NewMatchTableWithBounds(index *Index, org, new_ ByteSource, size int, compareAll bool, aheadMax int, eqlMin, eqlMax int64) *MatchTable {
	if size <= 0 {
		size = 128
	}
	if eqlMin <= 0 {
		eqlMin = defaultEqlMin
	}
	if eqlMax < eqlMin {
		eqlMax = defaultEqlMax
	}
	buckets := largestPrimeAtMost(2 * size)
	maxGlide := int64(index.SampleSize())
	if maxGlide <= 0 {
		maxGlide = defaultEqlMin
	}
	mt := &MatchTable{
		index: index, org: org, new_: new_,
		compareAll: compareAll, aheadMax: aheadMax,
		maxGlide:   maxGlide,
		eqlMin:     eqlMin, eqlMax: eqlMax,
		records:    make([]matchRecord, size),
		colBuckets: make([]int, buckets),
		gldBuckets: make([]int, buckets),
		oldHead:    noRecord,
		newHead:    noRecord,
		newTail:    noRecord,
		best:       noRecord,
	}
	for i := range mt.colBuckets {
		mt.colBuckets[i] = noRecord
		mt.gldBuckets[i] = noRecord
	}
	mt.free = make([]int, size)
	for i := 0; i < size; i++ {
		mt.free[i] = size - 1 - i
	}
	return mt
}

func (mt *MatchTable) HashRepairs() int { return mt.hashRepairs }

func colBucketIndex(delta int64, n int) int {
	d := delta
	if d < 0 {
		d = -d
	}
	return int(d % int64(n))
}

func gldBucketIndex(orgPos int64, n int) int {
	return int(((orgPos % int64(n)) + int64(n)) % int64(n))
}

// Add attaches a new hit (orgPos, newPos) to an existing record or
// allocates one, per §4.4.1.
func (mt *MatchTable) Add(orgPos, newPos, readCursor int64) Outcome {
	delta := orgPos - newPos

	cb := colBucketIndex(delta, len(mt.colBuckets))
	for i := mt.colBuckets[cb]; i != noRecord; i = mt.records[i].nextCol {
		r := &mt.records[i]
		if r.delta == delta {
			wasGliding := r.count == 1
			r.count++
			if newPos > r.newLast {
				r.newLast = newPos
			}
			r.orgPos = orgPos
			mt.hashRepairs++
			if wasGliding && r.count == 2 {
				mt.removeFromGldBucket(i)
			}
			return mt.isGoodOrBest(i, readCursor)
		}
	}

	gb := gldBucketIndex(orgPos, len(mt.gldBuckets))
	for i := mt.gldBuckets[gb]; i != noRecord; i = mt.records[i].nextGld {
		r := &mt.records[i]
		if r.orgPos == orgPos {
			wasColliding := r.count == 1
			r.count++
			if newPos > r.newLast {
				r.newLast = newPos
			}
			if r.glide == 0 {
				g := r.newLast - r.newFirst
				if g > mt.maxGlide {
					g = mt.maxGlide
				}
				r.glide = g
			}
			mt.hashRepairs++
			if wasColliding && r.count == 2 {
				mt.removeFromColBucket(i)
			}
			return mt.isGoodOrBest(i, readCursor)
		}
	}

	idx, ok := mt.allocate()
	if !ok {
		return OutError
	}
	mt.records[idx] = matchRecord{
		inUse: true, count: 1,
		newFirst: newPos, newLast: newPos, orgPos: orgPos, delta: delta,
		nextAge: noRecord, nextCol: noRecord, nextGld: noRecord,
		testLen: cmpSkip, // no probe yet: isGoodOrBest must call check
	}
	mt.insertColBucket(idx)
	mt.insertGldBucket(idx)
	mt.addNew(idx)
	outcome := mt.isGoodOrBest(idx, readCursor)
	if len(mt.free) == 0 && mt.oldHead == noRecord &&
		(outcome == OutValid || outcome == OutEnlarged || outcome == OutInvalid) {
		outcome = OutFull
	}
	return outcome
}

func (mt *MatchTable) allocate() (int, bool) {
	if n := len(mt.free); n > 0 {
		idx := mt.free[n-1]
		mt.free = mt.free[:n-1]
		return idx, true
	}
	prev := noRecord
	for i := mt.oldHead; i != noRecord; i = mt.records[i].nextAge {
		if mt.isReusable(i) {
			if prev == noRecord {
				mt.oldHead = mt.records[i].nextAge
			} else {
				mt.records[prev].nextAge = mt.records[i].nextAge
			}
			mt.removeFromColBucket(i)
			mt.removeFromGldBucket(i)
			return i, true
		}
		prev = i
	}
	return 0, false
}

func (mt *MatchTable) insertColBucket(idx int) {
	b := colBucketIndex(mt.records[idx].delta, len(mt.colBuckets))
	mt.records[idx].nextCol = mt.colBuckets[b]
	mt.colBuckets[b] = idx
}

func (mt *MatchTable) insertGldBucket(idx int) {
	b := gldBucketIndex(mt.records[idx].orgPos, len(mt.gldBuckets))
	mt.records[idx].nextGld = mt.gldBuckets[b]
	mt.gldBuckets[b] = idx
}

func (mt *MatchTable) removeFromColBucket(idx int) {
	b := colBucketIndex(mt.records[idx].delta, len(mt.colBuckets))
	mt.unlink(&mt.colBuckets[b], idx, func(i int) *int { return &mt.records[i].nextCol })
}

func (mt *MatchTable) removeFromGldBucket(idx int) {
	b := gldBucketIndex(mt.records[idx].orgPos, len(mt.gldBuckets))
	mt.unlink(&mt.gldBuckets[b], idx, func(i int) *int { return &mt.records[i].nextGld })
}

func (mt *MatchTable) unlink(head *int, idx int, next func(int) *int) {
	if *head == idx {
		*head = *next(idx)
		return
	}
	for i := *head; i != noRecord; i = *next(i) {
		if *next(i) == idx {
			*next(i) = *next(idx)
			return
		}
	}
}

func (mt *MatchTable) addNew(idx int) {
	mt.records[idx].nextAge = noRecord
	if mt.newHead == noRecord {
		mt.newHead = idx
	} else {
		mt.records[mt.newTail].nextAge = idx
	}
	mt.newTail = idx
}

// isGoodOrBest implements §4.4.2: compute the test position, reuse a
// prior probe when possible, otherwise call check; classify the result
// and update the current best (§4.4.3).
func (mt *MatchTable) isGoodOrBest(idx int, readCursor int64) Outcome {
	r := &mt.records[idx]

	testOrg, testNew, gliding := mt.calcPosOrg(r, readCursor)

	var length int64
	switch {
	case r.testLen >= 0 && testNew <= r.testPos:
		shift := r.testPos - testNew
		length = r.testLen + shift
		if length < 0 {
			length = cmpInvalid
		}
	case r.testLen >= 0 && testNew >= r.testPos && testNew < r.testPos+r.testLen:
		length = r.testPos + r.testLen - testNew
	default:
		mode := SoftAhead
		if mt.compareAll {
			mode = HardAhead
		}
		length = mt.check(testOrg, testNew, mt.eqlMax, mt.probeBudget(r, testNew), gliding, mode)
	}

	if length >= mt.eqlMax && r.newLast >= testNew {
		if extend := r.newLast - testNew; extend > length {
			length = extend
		}
	}

	r.testPos = testNew
	r.testLen = length

	best := mt.isBest(idx, testOrg, testNew, length)

	switch {
	case length == cmpEndOfBuffer:
		return OutValid
	case length < mt.eqlMin:
		return OutInvalid
	case best && length >= mt.eqlMax:
		return OutBest
	case best && length >= eqlGood:
		return OutGood
	case best:
		return OutValid
	default:
		return OutEnlarged
	}
}

// calcPosOrg implements the §4.4.2 test-position rule: a gliding match
// whose destination cursor falls within its confirmed range is probed
// directly at its fixed source position; otherwise the source position
// follows the colliding delta, clamped so it never goes negative.
func (mt *MatchTable) calcPosOrg(r *matchRecord, cursor int64) (orgPos, newPos int64, gliding bool) {
	if r.glide > 0 && cursor >= r.newFirst && cursor <= r.newLast {
		return r.orgPos, cursor, true
	}
	newPos = cursor
	orgPos = newPos + r.delta
	if orgPos < 0 {
		newPos -= orgPos
		orgPos = 0
	}
	return orgPos, newPos, false
}

// probeBudget implements §4.4.2's "distance to probe": the further the
// search cursor has travelled from the candidate's first hit, the more
// byte comparisons check() is allowed before giving up, clamped to
// [minDist, maxDist].
func (mt *MatchTable) probeBudget(r *matchRecord, cursor int64) int64 {
	dist := cursor - r.newFirst
	if dist < 0 {
		dist = -dist
	}
	if dist < minDist {
		return minDist
	}
	if dist > maxDist {
		return maxDist
	}
	return dist
}

// check performs the byte-for-byte comparison of §4.4.2: up to eqlMax
// matching bytes, resuming below eqlMin by resetting to the candidate
// start (gliding) or advancing both cursors (colliding). EOB from
// either byte source before eqlMin is a tentative non-result, not an
// invalidation (§7). budget bounds the total number of byte comparisons,
// matching or not, per probeBudget's distance-to-probe rule.
func (mt *MatchTable) check(org, new_ int64, maxLen, budget int64, gliding bool, mode ReadMode) int64 {
	startOrg := org
	var matched int64
	for budget > 0 {
		ob, errO := mt.org.Get(org, mode)
		nb, errN := mt.new_.Get(new_, mode)
		if errors.Is(errO, ErrEndOfBuffer) || errors.Is(errN, ErrEndOfBuffer) {
			if matched < mt.eqlMin {
				return cmpEndOfBuffer
			}
			return matched
		}
		if errO != nil || errN != nil {
			if matched < mt.eqlMin {
				return cmpInvalid
			}
			return matched
		}
		if ob == nb {
			matched++
			org++
			new_++
			if matched >= maxLen {
				return matched
			}
			budget--
			continue
		}
		if matched >= mt.eqlMin {
			return matched
		}
		if gliding {
			org = startOrg
		} else {
			org++
		}
		new_++
		matched = 0
		budget--
	}
	if matched >= mt.eqlMin {
		return matched
	}
	return cmpInvalid
}

// isBest implements §4.4.3's selection among all evaluated records:
// minimise destination-side start position, tie-break by longer
// test_len then higher count, and suppress low-confidence candidates
// when a real comparison already did better.
func (mt *MatchTable) isBest(idx int, testOrg, testNew, length int64) bool {
	r := &mt.records[idx]

	score := length
	if length == cmpEndOfBuffer {
		dist := testNew - r.newLast
		if dist < 0 {
			dist = 0
		}
		s := int64(r.count) + dist
		if s < 1 {
			s = 1
		}
		cap_ := int64(1) + mt.eqlMax/2
		if s > cap_ {
			s = cap_
		}
		score = s
	}

	if mt.best == noRecord {
		mt.setBest(idx, testOrg, testNew, score)
		return true
	}
	if idx == mt.best {
		mt.bestCmp = score
		return true
	}

	if length >= 0 && length < 2 && mt.bestCmp > 4 {
		return false
	}

	betterStart := testNew < mt.bestNew-fuzziness
	tie := testNew <= mt.bestNew+fuzziness

	if betterStart {
		mt.setBest(idx, testOrg, testNew, score)
		return true
	}
	if tie && (score > mt.bestCmp || (score == mt.bestCmp && r.count > mt.records[mt.best].count)) {
		mt.setBest(idx, testOrg, testNew, score)
		return true
	}
	return false
}

func (mt *MatchTable) setBest(idx int, org, new_, score int64) {
	mt.best = idx
	mt.bestOrg = org
	mt.bestNew = new_
	mt.bestCmp = score
}

// isSkippable and isReusable implement §4.4.4's aging predicates.
func (mt *MatchTable) isSkippable(r *matchRecord, cursor int64) bool {
	return r.testLen != cmpEndOfBuffer && r.newLast+maxDist <= cursor
}

func (mt *MatchTable) isReusable(idx int) bool {
	if idx == mt.best {
		return false
	}
	r := &mt.records[idx]
	eobOrInvalid := r.testLen == cmpEndOfBuffer || r.testLen == cmpInvalid
	return eobOrInvalid && r.newLast < mt.oldLimit
}

// Cleanup implements §4.4.4's cleanup(base_org, cursor): splice the new
// list onto the old list, refresh the reliability range and reuse
// frontier from the index, and re-evaluate every surviving record.
func (mt *MatchTable) Cleanup(baseOrg, cursor int64) Outcome {
	if mt.newHead != noRecord {
		mt.records[mt.newTail].nextAge = mt.oldHead
		mt.oldHead = mt.newHead
		mt.newHead, mt.newTail = noRecord, noRecord
	}

	mt.reliability = mt.index.Reliability()

	var bestLen, bestPos int64
	if mt.best != noRecord {
		if l := mt.records[mt.best].testLen; l < 0 {
			bestLen = l
		}
		bestPos = mt.records[mt.best].testPos
	}
	mt.oldLimit = bestPos + bestLen - int64(mt.reliability)
	if mt.oldLimit > cursor {
		mt.oldLimit = cursor
	}

	outcome := OutValid
	for i := mt.oldHead; i != noRecord; i = mt.records[i].nextAge {
		r := &mt.records[i]
		if baseOrg > 0 && r.orgPos < baseOrg && r.count <= 1 {
			r.testLen = cmpSkip
			continue
		}
		if mt.isSkippable(r, cursor) {
			r.testLen = cmpSkip
			continue
		}
		switch mt.isGoodOrBest(i, cursor) {
		case OutBest:
			outcome = OutBest
		case OutGood:
			if outcome != OutBest {
				outcome = OutGood
			}
		}
	}
	if len(mt.free) == 0 && mt.oldHead == noRecord {
		outcome = OutFull
	}
	return outcome
}

// GetBest implements the retrieval half of §4.6 step 7: the current
// best match's (source, destination) position pair, or ok=false if no
// candidate has reached the minimum equal-run.
func (mt *MatchTable) GetBest() (bestOrg, bestNew int64, ok bool) {
	if mt.best == noRecord {
		return 0, 0, false
	}
	r := &mt.records[mt.best]
	if r.testLen < mt.eqlMin {
		return 0, 0, false
	}
	return mt.bestOrg, mt.bestNew, true
}
