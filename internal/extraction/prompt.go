package extraction

// labelInstructions is the shared preamble sent to every backend.
const labelInstructions = `You are reading the text of a museum wall label that was captured with a phone camera. Extract the metadata of the object the label describes.

Wall labels usually list their information one item per line in roughly this order:

1. **Title**: the title or name of the object. Labels often prefix the title with a number followed by a space (for example "12 Portrait of a Lady"); this number is a key between the label and the wall and is NOT part of the title. Remove it.
2. **Date**: the year the object was made. The date sometimes shares a line with the title, separated by a comma (for example "Portrait of a Lady, 1890"). Ranges like "1890-1895" or "ca. 1890" should use the first year.
3. **Creator**: the artist, maker, workshop or organization responsible for the object.
4. **Location**: where the object was produced.
5. **Medium**: the materials or technique (for example "Oil on canvas").
6. **Creditline**: who donated or lent the object (for example "Gift of Mrs. Smith, 1975").
7. **Accession number**: the museum's identifier for the object (for example "1975.1.42"). Copy it exactly.

Important:
- Some fields may be absent from a label. Use an empty string for missing text fields and 0 for a missing year.
- Do not invent information that is not in the text.
- Return ONLY a JSON object matching the provided schema.
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
