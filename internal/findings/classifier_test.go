package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eeg-findings-server/internal/domain"
)

func section(t *testing.T, s domain.Sections, key domain.SectionKey) domain.Section {
	t.Helper()
	sec, ok := s.Get(key)
	require.True(t, ok, "section %s missing", key)
	return sec
}

func classifyLines(lines ...string) domain.Sections {
	text := ""
	for _, l := range lines {
		text += l + "\n"
	}
	return Parse(text)
}

func TestClassify_NarrativeContentAndDescription(t *testing.T) {
	s := classifyLines(
		"**Zemin Aktivitesi**",
		"Background is regular",
		"- mild irregularity noted",
	)

	bg := section(t, s, domain.SectionBackground)
	assert.Equal(t, domain.KindNarrative, bg.Kind)
	assert.Equal(t, "Background is regular", bg.Content)
	assert.Equal(t, "mild irregularity noted", bg.Description)
}

func TestClassify_ItemWithSubDescription(t *testing.T) {
	s := classifyLines(
		"**Anormal Bulgular**",
		"1. Sharp wave (Right frontal) [x:300,y:400]",
		"- suggests focal epileptiform activity",
	)

	abnormal := section(t, s, domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 1)
	item := abnormal.Items[0]
	assert.Equal(t, 2, item.ID)
	assert.Equal(t, "Sharp wave", item.Title)
	assert.Equal(t, "Right frontal", item.Location)
	assert.Equal(t, "suggests focal epileptiform activity", item.Description)
	assert.Equal(t, domain.Box{X: 300, Y: 400, Width: 30, Height: 20}, item.Coordinates)
}

func TestClassify_ConclusionFragmentsJoined(t *testing.T) {
	s := classifyLines(
		"**Sonuç ve Öneriler**",
		"- Abnormal EEG.",
		"- Clinical correlation is recommended.",
	)

	conclusion := section(t, s, domain.SectionConclusion)
	assert.Equal(t, "Abnormal EEG. Clinical correlation is recommended.", conclusion.Description)
	assert.Empty(t, conclusion.Content)
}

func TestClassify_DropsLinesBeforeFirstHeader(t *testing.T) {
	s := classifyLines(
		"Preamble from the model",
		"1. Early spike (Cz) [x:100, y:100]",
		"- orphan description",
		"**Zemin Aktivitesi**",
		"Background is regular",
	)

	bg := section(t, s, domain.SectionBackground)
	assert.Equal(t, "Background is regular", bg.Content)
	assert.Empty(t, bg.Description)
	assert.Empty(t, s.Items())

	s.Each(func(_ domain.SectionKey, sec domain.Section) {
		assert.NotContains(t, sec.Content, "Preamble")
		assert.NotContains(t, sec.Description, "orphan")
	})
}

func TestClassify_NarrativeKeepsLastContentLine(t *testing.T) {
	s := classifyLines(
		"**Zemin Aktivitesi**",
		"First line",
		"Second line",
		"Third line",
	)

	assert.Equal(t, "Third line", section(t, s, domain.SectionBackground).Content)
}

func TestClassify_ItemListDropsLinesWithoutLocation(t *testing.T) {
	s := classifyLines(
		"**Artefaktlar**",
		"Several artifacts are present",
		"1. Muscle artifact (Temporal) [x:800, y:200]",
		"2. Electrode pop",
	)

	artifacts := section(t, s, domain.SectionArtifacts)
	require.Len(t, artifacts.Items, 1)
	assert.Equal(t, "Muscle artifact", artifacts.Items[0].Title)
	assert.Empty(t, artifacts.Content)
}

func TestClassify_DashInFreshItemListIsDropped(t *testing.T) {
	s := classifyLines(
		"**Anormal Bulgular**",
		"- no item yet",
		"1. Spike (F3) [x:1, y:2]",
	)

	abnormal := section(t, s, domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 1)
	assert.Empty(t, abnormal.Items[0].Description)
	assert.Empty(t, abnormal.Description)
}

func TestClassify_HeaderResetsLastItem(t *testing.T) {
	s := classifyLines(
		"**Anormal Bulgular**",
		"1. Spike (F3) [x:1, y:2]",
		"**Artefaktlar**",
		"- belongs to nothing",
	)

	abnormal := section(t, s, domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 1)
	assert.Empty(t, abnormal.Items[0].Description)
	assert.Empty(t, section(t, s, domain.SectionArtifacts).Items)
}

func TestClassify_LaterDashOverwritesItemDescription(t *testing.T) {
	s := classifyLines(
		"**Anormal Bulgular**",
		"1. Spike (F3) [x:1, y:2]",
		"- first",
		"- second",
	)

	items := section(t, s, domain.SectionAbnormal).Items
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Description)
}

func TestClassify_UnknownBoldLineKeepsState(t *testing.T) {
	s := classifyLines(
		"**Zemin Aktivitesi**",
		"Regular alpha",
		"**Hasta Bilgisi**",
		"Posterior dominant rhythm 9 Hz",
	)

	bg := section(t, s, domain.SectionBackground)
	assert.Equal(t, "Posterior dominant rhythm 9 Hz", bg.Content)
}

func TestClassify_NumberedBoldHeader(t *testing.T) {
	s := classifyLines(
		"2. **Anormal Bulgular**",
		"1. Spike (F3) [x:1, y:2]",
	)

	assert.Len(t, section(t, s, domain.SectionAbnormal).Items, 1)
}

func TestClassify_TitleOrdinalWithoutDot(t *testing.T) {
	s := classifyLines(
		"**Anormal Bulgular**",
		"3 Polyspike (Fz) [x:5, y:6]",
	)

	items := section(t, s, domain.SectionAbnormal).Items
	require.Len(t, items, 1)
	assert.Equal(t, "Polyspike", items[0].Title)
}

func TestClassify_ReenteringSectionAppendsItems(t *testing.T) {
	s := classifyLines(
		"**Anormal Bulgular**",
		"1. Spike (F3) [x:1, y:2]",
		"**Artefaktlar**",
		"1. Blink (Fp1) [x:3, y:4]",
		"**Anormal Bulgular**",
		"2. Sharp wave (T4) [x:5, y:6]",
	)

	abnormal := section(t, s, domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 2)
	assert.Equal(t, "Sharp wave", abnormal.Items[1].Title)
	assert.Len(t, section(t, s, domain.SectionArtifacts).Items, 1)
}

func TestClassify_EmptyInputGivesFourEmptySections(t *testing.T) {
	s := Classify(Extract(""))

	count := 0
	s.Each(func(key domain.SectionKey, sec domain.Section) {
		count++
		assert.Equal(t, key.Kind(), sec.Kind)
		assert.Empty(t, sec.Content)
		assert.Empty(t, sec.Description)
		assert.Empty(t, sec.Items)
	})
	assert.Equal(t, 4, count)
}

func TestClassify_FullReport(t *testing.T) {
	report := `Here is the analysis of the EEG.

**Zemin Aktivitesi**
- Genel olarak, EEG izleri düzenli görünmektedir.
Posterior dominant ritim 9-10 Hz alfa

**Anormal Bulgular**
1. Jeneralize yüksek voltajlı keskin dalgalar (Bilateral frontal) [x:450, y:300]
- Bu bulgular, nörolojik bir bozukluğun varlığını işaret edebilir.
2. Fokal yavaşlama (Sol temporal) [x:200, y:520]

**Artefaktlar**
1. Göz kırpma artefaktı (Fp1-Fp2) [x:150, y:90]
- Frontal kanallarda belirgin.

**Sonuç ve Öneriler**
Anormal EEG
- Epileptiform aktivite ile uyumlu bulgular.
- Klinik korelasyon önerilir.`

	s := Parse(report)

	bg := section(t, s, domain.SectionBackground)
	assert.Equal(t, "Posterior dominant ritim 9-10 Hz alfa", bg.Content)
	assert.Equal(t, "Genel olarak, EEG izleri düzenli görünmektedir.", bg.Description)

	abnormal := section(t, s, domain.SectionAbnormal)
	require.Len(t, abnormal.Items, 2)
	assert.Equal(t, "Jeneralize yüksek voltajlı keskin dalgalar", abnormal.Items[0].Title)
	assert.Equal(t, "Bilateral frontal", abnormal.Items[0].Location)
	assert.Equal(t, "Bu bulgular, nörolojik bir bozukluğun varlığını işaret edebilir.", abnormal.Items[0].Description)
	assert.Equal(t, "Fokal yavaşlama", abnormal.Items[1].Title)
	assert.Empty(t, abnormal.Items[1].Description)
	assert.Less(t, abnormal.Items[0].ID, abnormal.Items[1].ID)

	artifacts := section(t, s, domain.SectionArtifacts)
	require.Len(t, artifacts.Items, 1)
	assert.Equal(t, "Frontal kanallarda belirgin.", artifacts.Items[0].Description)

	conclusion := section(t, s, domain.SectionConclusion)
	assert.Equal(t, "Anormal EEG", conclusion.Content)
	assert.Equal(t, "Epileptiform aktivite ile uyumlu bulgular. Klinik korelasyon önerilir.", conclusion.Description)
}

func TestClassify_DoesNotMutateInput(t *testing.T) {
	fs := ExtractAll("**Anormal Bulgular**\n1. Spike (F3) [x:1, y:2]\n- desc")
	snapshot := append([]domain.Finding(nil), fs...)

	first := ClassifyFindings(fs)
	second := ClassifyFindings(fs)

	assert.Equal(t, snapshot, fs)
	assert.Equal(t, first, second)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		state    State
		event    EventKind
		expected Action
	}{
		{NoSection, EventHeader, ActionEnter},
		{NoSection, EventUnknownHeader, ActionIgnore},
		{NoSection, EventSubDescription, ActionDiscard},
		{NoSection, EventContent, ActionDiscard},
		{InBackground, EventSubDescription, ActionDescribe},
		{InBackground, EventContent, ActionSetContent},
		{InAbnormal, EventContent, ActionPromote},
		{InArtifacts, EventSubDescription, ActionDescribe},
		{InConclusion, EventSubDescription, ActionAppendFragment},
		{InConclusion, EventContent, ActionSetContent},
		{InConclusion, EventHeader, ActionEnter},
	}

	for _, tt := range tests {
		t.Run(tt.state.String()+"/"+tt.event.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, Transition(tt.state, tt.event))
		})
	}
}

func TestEventFor(t *testing.T) {
	tests := []struct {
		name string
		desc string
		kind EventKind
		key  domain.SectionKey
		text string
	}{
		{"Known header", "**Artefaktlar**", EventHeader, domain.SectionArtifacts, "**Artefaktlar**"},
		{"Header with inner spaces", "** Sonuç ve Öneriler **", EventHeader, domain.SectionConclusion, "** Sonuç ve Öneriler **"},
		{"Unknown header", "**Yorum**", EventUnknownHeader, "", "**Yorum**"},
		{"Bare key is content", "Artefaktlar", EventContent, "", "Artefaktlar"},
		{"Dash line", "-  trailing text ", EventSubDescription, "", "trailing text"},
		{"Content", "Regular rhythm", EventContent, "", "Regular rhythm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := EventFor(domain.Finding{Description: tt.desc})
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.key, ev.Key)
			assert.Equal(t, tt.text, ev.Text)
		})
	}
}

func TestClassifyTrace_ReportsDrops(t *testing.T) {
	_, steps := ClassifyTrace(Extract("before header\n**Artefaktlar**\nno location\n1. Blink (Fp1) [x:1, y:1]"))

	require.Len(t, steps, 4)
	assert.Equal(t, ActionDiscard, steps[0].Action)
	assert.True(t, steps[0].Dropped)
	assert.Equal(t, ActionEnter, steps[1].Action)
	assert.False(t, steps[1].Dropped)
	assert.Equal(t, ActionPromote, steps[2].Action)
	assert.True(t, steps[2].Dropped)
	assert.Equal(t, InArtifacts, steps[3].State)
	assert.False(t, steps[3].Dropped)
}
