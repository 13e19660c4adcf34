package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeRanges(t *testing.T) {
	for code := CodeLove; code <= CodeCustom; code++ {
		assert.True(t, IsAdd(code), "code %d", code)
		assert.False(t, IsRemove(code), "code %d", code)
		assert.True(t, IsReaction(code), "code %d", code)

		remove := code + RemoveOffset
		assert.True(t, IsRemove(remove), "code %d", remove)
		assert.False(t, IsAdd(remove), "code %d", remove)
	}
	for _, code := range []int{0, 1, 1000, 1999, 2007, 2999, 3007, 4000, -2000} {
		assert.False(t, IsReaction(code), "code %d", code)
	}
}

func TestClassify_EveryAddCodeWithoutEmoji(t *testing.T) {
	for code := CodeLove; code <= CodeCustom; code++ {
		_, ok := Classify(code, "")
		assert.True(t, ok, "code %d", code)
	}
}

func TestClassify_AddAndRemoveAgree(t *testing.T) {
	for code := CodeLove; code <= CodeCustom; code++ {
		add, ok := Classify(code, "🎉")
		require.True(t, ok, "code %d", code)

		remove, ok := Classify(code+RemoveOffset, "🎉")
		require.True(t, ok, "code %d", code+RemoveOffset)
		assert.Equal(t, add, remove)
	}
}

func TestClassify_Kinds(t *testing.T) {
	cases := map[int]Kind{
		CodeLove:     KindLove,
		CodeLike:     KindLike,
		CodeDislike:  KindDislike,
		CodeLaugh:    KindLaugh,
		CodeEmphasis: KindEmphasis,
		CodeQuestion: KindQuestion,
	}
	for code, want := range cases {
		got, ok := Classify(code, "")
		require.True(t, ok)
		assert.Equal(t, want, got.Kind)
		assert.Empty(t, got.Emoji)
	}

	got, ok := Classify(CodeCustom, "🔥")
	require.True(t, ok)
	assert.Equal(t, Custom("🔥"), got)

	got, ok = Classify(CodeCustom, "")
	require.True(t, ok)
	assert.Equal(t, KindCustom, got.Kind)
	assert.Empty(t, got.Emoji)

	_, ok = Classify(1500, "")
	assert.False(t, ok)
}

func TestDecode_NotAReaction(t *testing.T) {
	d := Decode(0, "p:0/ABC", "hello")
	assert.False(t, d.IsReaction)
	assert.Nil(t, d.Type)
	assert.Nil(t, d.IsAdd)
	assert.Empty(t, d.ReactedToGUID)
}

func TestDecode_Love(t *testing.T) {
	d := Decode(CodeLove, "p:0/A1B2C3D4-0000-1111-2222-333344445555", "Loved “hello”")
	require.True(t, d.IsReaction)
	require.NotNil(t, d.Type)
	require.NotNil(t, d.IsAdd)
	assert.Equal(t, KindLove, d.Type.Kind)
	assert.True(t, *d.IsAdd)
	assert.Equal(t, "A1B2C3D4-0000-1111-2222-333344445555", d.ReactedToGUID)
}

func TestDecode_RemoveLike(t *testing.T) {
	d := Decode(CodeLike+RemoveOffset, "bp:GUID-1", "Removed a like from “hi”")
	require.True(t, d.IsReaction)
	require.NotNil(t, d.Type)
	assert.Equal(t, KindLike, d.Type.Kind)
	assert.False(t, *d.IsAdd)
	assert.Equal(t, "GUID-1", d.ReactedToGUID)
}

func TestDecode_Custom(t *testing.T) {
	d := Decode(CodeCustom, "p:0/GUID-2", "Reacted 🎉 to “we shipped”")
	require.NotNil(t, d.Type)
	assert.Equal(t, Custom("🎉"), *d.Type)
	assert.Equal(t, "🎉", d.Type.DisplayEmoji())
}

func TestDecode_CustomFallbackToFirstEmoji(t *testing.T) {
	d := Decode(CodeCustom, "GUID-3", "🙏 thanks")
	require.NotNil(t, d.Type)
	assert.Equal(t, Custom("🙏"), *d.Type)
}

func TestDecode_CustomWithoutEmoji(t *testing.T) {
	d := Decode(CodeCustomRemove, "GUID-4", "Removed a reaction")
	assert.True(t, d.IsReaction)
	assert.Nil(t, d.Type)
	require.NotNil(t, d.IsAdd)
	assert.False(t, *d.IsAdd)
}

func TestExtractEmoji(t *testing.T) {
	cases := map[string]string{
		"Reacted 👍🏽 to “ok”":          "👍🏽",
		"Reacted ❤️‍🔥 to “date night”": "❤️‍🔥",
		"Removed 🎉 from “party”":      "🎉",
		"Reacted 🇯🇵 to “trip”":        "🇯🇵",
		"no emoji here":               "",
		"":                            "",
	}
	for text, want := range cases {
		assert.Equal(t, want, ExtractEmoji(text), "text %q", text)
	}
}

func TestNormalizeGUID(t *testing.T) {
	assert.Equal(t, "ABC", NormalizeGUID("p:0/ABC"))
	assert.Equal(t, "ABC", NormalizeGUID("p:12/x/ABC"))
	assert.Equal(t, "ABC", NormalizeGUID("bp:ABC"))
	assert.Equal(t, "ABC", NormalizeGUID(" ABC "))
	assert.Equal(t, "", NormalizeGUID(""))
}

func TestCodeFromText(t *testing.T) {
	code, ok := CodeFromText("Laughed at “lol”")
	require.True(t, ok)
	assert.Equal(t, CodeLaugh, code)

	_, ok = CodeFromText("Lovely weather")
	assert.False(t, ok)
	_, ok = CodeFromText("loved it")
	assert.False(t, ok)
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, "love", Type{Kind: KindLove}.Name())
	assert.Equal(t, "❤️", Type{Kind: KindLove}.DisplayEmoji())
	assert.Equal(t, "custom(🔥)", Custom("🔥").String())
	assert.Equal(t, "unknown", Kind(99).String())

	b, err := Custom("🔥").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"custom","emoji":"🔥"}`, string(b))
}
